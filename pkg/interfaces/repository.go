package interfaces

import (
	"context"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
)

// SettingsRepository stores per-owner privacy settings
type SettingsRepository interface {
	// GetMode returns the owner's privacy mode, or found=false when unset
	GetMode(ctx context.Context, owner model.OwnerID) (mode model.PrivacyMode, found bool, err error)

	// PutMode saves the owner's privacy mode
	PutMode(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error

	// DeleteSettings removes every setting stored for the owner
	DeleteSettings(ctx context.Context, owner model.OwnerID) error
}
