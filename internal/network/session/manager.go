package session

import (
	"sync"

	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
)

// Manager 维护当前所有在线会话的有序集合。
//
// 职责说明：
//   - 只负责会话的注册、移除与遍历，不直接创建或关闭底层连接；
//   - 新会话插入到集合头部，遍历顺序即为“最新连接在前”；
//   - 移除按指针身份进行，多个会话可以绑定同一频道；
//   - Range/Snapshot 在遍历前复制成员切片，不在持锁情况下执行回调。
type Manager struct {
	mu       sync.RWMutex
	sessions []*Session
}

// NewManager 创建一个空的 Manager。
func NewManager() *Manager {
	return &Manager{}
}

// Register 将会话插入集合头部，返回插入后的会话数量。
func (m *Manager) Register(sess *Session) int {
	if sess == nil {
		return m.Count()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = append(m.sessions, nil)
	copy(m.sessions[1:], m.sessions)
	m.sessions[0] = sess
	return len(m.sessions)
}

// Unregister 按身份移除会话，返回是否确实移除以及移除后的会话数量。
//
// 对同一会话重复调用是安全的，只有第一次返回 true。
func (m *Manager) Unregister(sess *Session) (bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.sessions {
		if s != sess {
			continue
		}
		copy(m.sessions[i:], m.sessions[i+1:])
		m.sessions[len(m.sessions)-1] = nil
		m.sessions = m.sessions[:len(m.sessions)-1]
		return true, len(m.sessions)
	}
	return false, len(m.sessions)
}

// Get 根据会话 ID 查找会话。
func (m *Manager) Get(id uint64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Snapshot 返回当前成员的副本。
func (m *Manager) Snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Range 遍历当前所有在线会话；fn 返回 false 时中断遍历。
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

// ByChannel 返回当前绑定到 channel 的会话。channel 未设置时返回空。
func (m *Manager) ByChannel(channel protocol.ChannelID) []*Session {
	if !channel.IsSet() {
		return nil
	}
	var out []*Session
	m.Range(func(sess *Session) bool {
		if sess.Matches(channel) {
			out = append(out, sess)
		}
		return true
	})
	return out
}

// Count 返回当前已注册的会话数量。
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
