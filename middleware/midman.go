package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// MiddlewareManager collects engine-wide middlewares in mount order.
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Add 注册一个中间件
func (m *MiddlewareManager) Add(h ...gin.HandlerFunc) *MiddlewareManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h...)
	return m
}

func (m *MiddlewareManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mids)
}

// Mount installs a snapshot of the registered middlewares on r.
func (m *MiddlewareManager) Mount(r gin.IRoutes) {
	m.mu.RLock()
	handlers := append([]gin.HandlerFunc{}, m.mids...) // 拷贝一份快照
	m.mu.RUnlock()
	r.Use(handlers...)
}
