package repository

import (
	"context"
	"sync"

	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
)

// Memory is a process-local settings store, used when no Firestore
// project is configured and in tests.
type Memory struct {
	mu    sync.RWMutex
	modes map[model.OwnerID]model.PrivacyMode
}

var _ interfaces.SettingsRepository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{modes: map[model.OwnerID]model.PrivacyMode{}}
}

func (r *Memory) GetMode(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mode, ok := r.modes[owner]
	return mode, ok, nil
}

func (r *Memory) PutMode(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes[owner] = mode
	return nil
}

func (r *Memory) DeleteSettings(ctx context.Context, owner model.OwnerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modes, owner)
	return nil
}
