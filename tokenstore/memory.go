// Package tokenstore provides portal.TokenStorage backends for clients that
// are not a browser.
package tokenstore

import (
	"sync"

	portal "github.com/goliatone/go-auth-portal"
)

// Memory keeps the token for the life of the process.
type Memory struct {
	mu      sync.RWMutex
	token   string
	present bool
}

// NewMemory returns an empty storage, or one holding token when given.
func NewMemory(token ...string) *Memory {
	m := &Memory{}
	if len(token) > 0 && token[0] != "" {
		m.token, m.present = token[0], true
	}
	return m
}

func (m *Memory) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.present
}

func (m *Memory) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.present = token, true
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.present = "", false
	return nil
}

var _ portal.TokenStorage = (*Memory)(nil)
