// Package session holds the process-wide session state: the bearer token and
// the online flag. It is created once at startup and injected into the remote
// client and the connectivity monitor.
package session

import (
	"log"
	"sync"
)

// TokenPersister stores the bearer token across restarts.
type TokenPersister interface {
	SaveToken(token string) error
	LoadToken() (string, error)
	ClearToken() error
}

// Context is safe for concurrent use.
type Context struct {
	mu     sync.RWMutex
	token  string
	online bool

	persister TokenPersister
	watchers  []func(online bool)
}

// New creates a session that starts offline and unauthenticated.
func New() *Context {
	return &Context{}
}

// WithPersister restores a saved token and persists later token changes.
func (c *Context) WithPersister(p TokenPersister) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.persister = p
	token, err := p.LoadToken()
	if err != nil {
		log.Printf("Session: failed to restore token: %v", err)
		return c
	}
	c.token = token
	return c
}

func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Context) Authenticated() bool {
	return c.Token() != ""
}

// SetToken is called at login.
func (c *Context) SetToken(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.persister != nil {
		if err := c.persister.SaveToken(token); err != nil {
			return err
		}
	}
	c.token = token
	return nil
}

// ClearToken is called on logout and when the remote service reports the
// token expired or invalid.
func (c *Context) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	if c.persister != nil {
		if err := c.persister.ClearToken(); err != nil {
			log.Printf("Session: failed to clear persisted token: %v", err)
		}
	}
}

func (c *Context) Online() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// SetOnline records the connectivity state and reports whether it changed.
// Watchers run on a change, outside the lock.
func (c *Context) SetOnline(online bool) bool {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return false
	}
	c.online = online
	watchers := append([]func(bool){}, c.watchers...)
	c.mu.Unlock()

	for _, w := range watchers {
		w(online)
	}
	return true
}

// OnOnlineChange registers fn to run on every connectivity transition.
func (c *Context) OnOnlineChange(fn func(online bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}
