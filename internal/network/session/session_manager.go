package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/lk2023060901/sslserver-go/pkg/util/merr"
)

// Manager 维护当前所有在线会话的索引。
//
// 职责说明：
//   - 只负责会话的注册、查询和移除，不直接创建或关闭底层连接；
//   - 会话由服务端在接受连接后注册，在断开流程的最后由会话自身移除；
//   - 广播等遍历操作基于快照进行，遍历期间的并发注册/移除不会影响本次遍历。
type Manager struct {
	mu       sync.RWMutex
	empty    *sync.Cond
	sessions map[uuid.UUID]*Session
}

// NewManager 创建一个空的 Manager。
func NewManager() *Manager {
	m := &Manager{
		sessions: make(map[uuid.UUID]*Session),
	}
	m.empty = sync.NewCond(&m.mu)
	return m
}

// Register 将一个已创建好的 Session 注册到管理器中。
//
// 当存在相同 ID 的会话时返回错误，避免覆盖旧会话。
func (m *Manager) Register(sess *Session) error {
	if sess == nil {
		return merr.WrapErrParameterMissing("session")
	}
	id := sess.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return merr.WrapErrSessionDuplicated(id)
	}
	m.sessions[id] = sess
	return nil
}

// Get 根据 session id 查找会话。
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	return sess, ok
}

// Unregister 从管理器中移除指定 id 的会话，仅删除索引。
func (m *Manager) Unregister(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return merr.WrapErrSessionNotFound(id)
	}
	delete(m.sessions, id)
	if len(m.sessions) == 0 {
		m.empty.Broadcast()
	}
	return nil
}

// Snapshot 返回当前所有会话的快照。
func (m *Manager) Snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Values(m.sessions)
}

// Range 遍历当前所有在线会话，fn 返回 false 时中断遍历。
//
// 遍历前复制一份会话切片，避免在持锁情况下执行用户回调。
func (m *Manager) Range(fn func(sess *Session) bool) {
	if fn == nil {
		return
	}

	for _, sess := range m.Snapshot() {
		if !fn(sess) {
			return
		}
	}
}

// Count 返回当前已注册的会话数量。
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// WaitEmpty 阻塞直到管理器中没有任何会话。
func (m *Manager) WaitEmpty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.sessions) > 0 {
		m.empty.Wait()
	}
}
