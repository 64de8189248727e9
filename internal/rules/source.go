package rules

import (
	"sync"
	"sync/atomic"

	"github.com/ppiankov/iocscore/internal/model"
)

// Source holds the active rules document. Readers never block; a reload
// swaps the pointer atomically, so every call sees one consistent document.
type Source struct {
	current atomic.Pointer[model.RulesConfig]

	mu        sync.Mutex
	listeners []func(*model.RulesConfig)
}

// NewSource creates a source serving cfg
func NewSource(cfg *model.RulesConfig) *Source {
	s := &Source{}
	s.current.Store(cfg)
	return s
}

// Current returns the active document. Callers must treat it as read-only.
func (s *Source) Current() *model.RulesConfig {
	return s.current.Load()
}

// Swap validates cfg and makes it active. An invalid document is rejected
// and the previous one stays in place.
func (s *Source) Swap(cfg *model.RulesConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.current.Store(cfg)

	s.mu.Lock()
	listeners := append([]func(*model.RulesConfig){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnChange registers fn to run after every successful swap
func (s *Source) OnChange(fn func(*model.RulesConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
