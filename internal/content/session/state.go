package session

import "sync"

// AppState is the explicit application state of one editor: whether admin
// mode is on and which tab is active.
type AppState struct {
	mu    sync.RWMutex
	admin bool
	tabID string
}

func (a *AppState) SetAdminMode(on bool) {
	a.mu.Lock()
	a.admin = on
	a.mu.Unlock()
}

func (a *AppState) IsAdmin() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.admin
}

func (a *AppState) SelectTab(tabID string) {
	a.mu.Lock()
	a.tabID = tabID
	a.mu.Unlock()
}

func (a *AppState) CurrentTab() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tabID
}
