package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether an action of a module is currently halted. An
// empty action asks about the module as a whole.
type PauseView interface {
	IsPaused(module, action string) bool
}

// Guard returns ErrModulePaused when the module, or the specific action, is
// paused.
func Guard(p PauseView, module, action string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module, "") || (action != "" && p.IsPaused(module, action)) {
		return ErrModulePaused
	}
	return nil
}

// Switchboard is an in-memory PauseView toggled by operators.
type Switchboard struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewSwitchboard returns a switchboard with nothing paused.
func NewSwitchboard() *Switchboard {
	return &Switchboard{paused: make(map[string]bool)}
}

func switchKey(module, action string) string {
	module = strings.ToLower(strings.TrimSpace(module))
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return module
	}
	return module + "." + action
}

// Set pauses or resumes module (action == "") or a single action.
func (s *Switchboard) Set(module, action string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := switchKey(module, action)
	if paused {
		s.paused[key] = true
		return
	}
	delete(s.paused, key)
}

// IsPaused implements PauseView.
func (s *Switchboard) IsPaused(module, action string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[switchKey(module, action)]
}
