// Package growable 实现了一个可扩容的线性字节缓冲区。
//
// 与 ring 包中的环形缓冲区不同，Buffer 的数据始终位于一段连续内存中，
// 可以整体交给一次 Write 调用写出，也可以作为 Read 的目标区域使用。
package growable

// Buffer 是一个可扩容的字节容器。
//
// 说明：
//   - Size 为当前已写入的字节数，Cap 为底层已分配的容量；
//   - Clear 只重置 Size，不释放底层内存，避免频繁分配；
//   - Buffer 本身不是并发安全的，由调用方负责加锁。
type Buffer struct {
	data []byte
}

// New 创建一个初始容量为 capacity 的 Buffer。
func New(capacity int) *Buffer {
	b := &Buffer{}
	b.Reserve(capacity)
	return b
}

// Size 返回当前已写入的字节数。
func (b *Buffer) Size() int { return len(b.data) }

// Cap 返回当前容量。
func (b *Buffer) Cap() int { return cap(b.data) }

// IsEmpty 判断缓冲区中是否没有数据。
func (b *Buffer) IsEmpty() bool { return len(b.data) == 0 }

// Bytes 返回已写入的数据，返回值与 Buffer 共享底层内存。
func (b *Buffer) Bytes() []byte { return b.data }

// Data 返回整个已分配区域 [0, Cap)，用作读操作的目标缓冲区。
func (b *Buffer) Data() []byte { return b.data[:cap(b.data)] }

// Reserve 保证容量至少为 n，已有数据会被保留。
//
// 扩容时新容量取 max(n, 2*Cap)，以摊平连续追加的分配成本。
func (b *Buffer) Reserve(n int) {
	if n <= cap(b.data) {
		return
	}
	newCap := 2 * cap(b.data)
	if newCap < n {
		newCap = n
	}
	data := make([]byte, len(b.data), newCap)
	copy(data, b.data)
	b.data = data
}

// Resize 将 Size 调整为 n，必要时扩容。新增区域的内容未定义。
func (b *Buffer) Resize(n int) {
	if n < 0 {
		n = 0
	}
	b.Reserve(n)
	b.data = b.data[:n]
}

// Append 将 p 追加到缓冲区末尾，返回追加的字节数。
func (b *Buffer) Append(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	b.Reserve(len(b.data) + len(p))
	b.data = append(b.data, p...)
	return len(p)
}

// AppendRange 追加 p[offset:offset+length]，越界部分会被截断。
func (b *Buffer) AppendRange(p []byte, offset, length int) int {
	if offset < 0 || offset >= len(p) || length <= 0 {
		return 0
	}
	end := offset + length
	if end > len(p) {
		end = len(p)
	}
	return b.Append(p[offset:end])
}

// AppendString 追加字符串内容。
func (b *Buffer) AppendString(s string) int {
	if len(s) == 0 {
		return 0
	}
	b.Reserve(len(b.data) + len(s))
	b.data = append(b.data, s...)
	return len(s)
}

// Clear 将 Size 重置为 0，保留容量。
func (b *Buffer) Clear() {
	b.data = b.data[:0]
}

// String 以字符串形式返回已写入的数据。
func (b *Buffer) String() string { return string(b.data) }
