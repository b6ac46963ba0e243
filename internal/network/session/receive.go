package session

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/sslserver-go/internal/network"
)

// Receive 同步读取数据到 buf，阻塞直到读到数据或出错。
//
// 读到的数据同样会通过 OnReceived 回调。会话握手后接收循环已在运行，
// 与其同时使用 Receive 时数据会被两者瓜分。
func (s *Session) Receive(buf []byte) int {
	if !s.handshaked.Load() || len(buf) == 0 {
		return 0
	}
	ch := s.current.Load()
	if ch == nil {
		return 0
	}

	n, err := ch.tls.Read(buf)
	if !s.live(ch) {
		return 0
	}
	if n > 0 {
		s.bytesReceived.Add(int64(n))
		s.stats.BytesReceived.Add(int64(n))
		s.handler.OnReceived(s, buf[:n])
	}
	if err != nil {
		s.reportError(network.StageRecv, err)
		s.Disconnect()
		return 0
	}
	return n
}

// ReceiveText 同步读取最多 size 字节并以字符串返回。
func (s *Session) ReceiveText(size int) string {
	if size <= 0 {
		return ""
	}
	buf := make([]byte, size)
	n := s.Receive(buf)
	return string(buf[:n])
}

// ReceiveAsync 启动接收循环，会话未握手时返回 false。
//
// 握手成功后接收循环会自动启动，已在接收时调用本方法不会重复启动。
func (s *Session) ReceiveAsync() bool {
	if !s.handshaked.Load() {
		return false
	}
	s.tryReceive()
	return true
}

func (s *Session) tryReceive() {
	if !s.handshaked.Load() {
		return
	}
	if !s.receiving.CompareAndSwap(false, true) {
		return
	}
	ch := s.current.Load()
	if err := s.pool.Go(func() { s.receiveLoop(ch) }); err != nil {
		s.receiving.Store(false)
		s.Logger().Warn("submit receive failed", zap.Error(err))
		s.Disconnect()
	}
}

// receiveLoop 串行地读取数据：同一时刻只有一个读操作。
//
// 读满整个缓冲区说明可能还有数据未读，下一次读取前将容量翻倍。
func (s *Session) receiveLoop(ch *channel) {
	for {
		buf := ch.recv.Data()
		n, err := ch.tls.Read(buf)
		if !s.live(ch) {
			return
		}

		if n > 0 {
			s.bytesReceived.Add(int64(n))
			s.stats.BytesReceived.Add(int64(n))
			s.handler.OnReceived(s, buf[:n])

			if n == len(buf) {
				ch.recv.Reserve(2 * n)
				s.recvCap.Store(int64(ch.recv.Cap()))
			}
		}

		if err != nil {
			s.reportError(network.StageRecv, err)
			s.Disconnect()
			return
		}
		if !s.live(ch) || !s.handshaked.Load() {
			return
		}
	}
}
