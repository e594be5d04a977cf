package chat

import (
	"sync"
)

// ConnManager indexes every open Client by connection id, including ones
// that were superseded and are still draining. The presence registry only
// knows the live one per user.
type ConnManager struct {
	mu     sync.RWMutex
	bySnow map[string]*Client
	onSize func(n int)
}

func NewConnManager(onSize func(n int)) *ConnManager {
	if onSize == nil {
		onSize = func(int) {}
	}
	return &ConnManager{bySnow: make(map[string]*Client), onSize: onSize}
}

func (m *ConnManager) Add(c *Client) {
	m.mu.Lock()
	m.bySnow[c.ConnID] = c
	n := len(m.bySnow)
	m.mu.Unlock()
	m.onSize(n)
}

func (m *ConnManager) Remove(c *Client) {
	m.mu.Lock()
	if cur, ok := m.bySnow[c.ConnID]; ok && cur == c {
		delete(m.bySnow, c.ConnID)
	}
	n := len(m.bySnow)
	m.mu.Unlock()
	m.onSize(n)
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySnow)
}

// CloseAll closes every connection; their read loops then unwind through Disconnect.
func (m *ConnManager) CloseAll() {
	m.mu.RLock()
	all := make([]*Client, 0, len(m.bySnow))
	for _, c := range m.bySnow {
		all = append(all, c)
	}
	m.mu.RUnlock()
	for _, c := range all {
		c.Close()
	}
}
