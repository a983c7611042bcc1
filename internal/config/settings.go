package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

const waitlistKey = "u-wave:waitlist"

// Backend persists raw settings documents.
type Backend interface {
	GetConfig(ctx context.Context, key string) (json.RawMessage, error)
	SetConfig(ctx context.Context, key string, value json.RawMessage) error
}

// WaitlistPatch changes only the fields that are set.
type WaitlistPatch struct {
	Locked *bool `json:"locked,omitempty"`
	Cycle  *bool `json:"cycle,omitempty"`
}

// WaitlistChange is delivered to listeners after a successful update.
// UserID is empty when the change is not attributable to a user.
type WaitlistChange struct {
	UserID   string
	Patch    WaitlistPatch
	Previous models.WaitlistSettings
	Current  models.WaitlistSettings
}

// Store holds runtime settings and notifies listeners of changes.
type Store struct {
	backend Backend

	mu        sync.Mutex
	listeners []func(context.Context, WaitlistChange)
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// OnWaitlistChange registers fn to run after every waitlist settings update.
func (s *Store) OnWaitlistChange(fn func(context.Context, WaitlistChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) WaitlistSettings(ctx context.Context) (models.WaitlistSettings, error) {
	settings := models.DefaultWaitlistSettings()
	raw, err := s.backend.GetConfig(ctx, waitlistKey)
	if err != nil {
		return settings, err
	}
	if raw == nil {
		return settings, nil
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return settings, fmt.Errorf("failed to unmarshal waitlist settings: %w", err)
	}
	return settings, nil
}

func (s *Store) SetWaitlistSettings(ctx context.Context, userID string, patch WaitlistPatch) (models.WaitlistSettings, error) {
	s.mu.Lock()
	previous, err := s.WaitlistSettings(ctx)
	if err != nil {
		s.mu.Unlock()
		return previous, err
	}

	current := previous
	if patch.Locked != nil {
		current.Locked = *patch.Locked
	}
	if patch.Cycle != nil {
		current.Cycle = *patch.Cycle
	}

	raw, err := json.Marshal(current)
	if err != nil {
		s.mu.Unlock()
		return previous, fmt.Errorf("failed to marshal waitlist settings: %w", err)
	}
	if err := s.backend.SetConfig(ctx, waitlistKey, raw); err != nil {
		s.mu.Unlock()
		return previous, err
	}
	listeners := append([]func(context.Context, WaitlistChange){}, s.listeners...)
	s.mu.Unlock()

	change := WaitlistChange{UserID: userID, Patch: patch, Previous: previous, Current: current}
	for _, fn := range listeners {
		fn(ctx, change)
	}
	return current, nil
}
