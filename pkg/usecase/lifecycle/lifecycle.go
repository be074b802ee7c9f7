package lifecycle

import (
	"context"

	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Forgetter invalidates pending ingestion of an owner.
type Forgetter interface {
	Forget(owner model.OwnerID)
}

type UseCase struct {
	index       interfaces.VectorIndex
	settings    interfaces.SettingsRepository
	forgetter   Forgetter
	defaultMode model.PrivacyMode
}

// New creates the lifecycle use case. forgetter may be nil when nothing
// ingests in the background.
func New(index interfaces.VectorIndex, settings interfaces.SettingsRepository, forgetter Forgetter, defaultMode model.PrivacyMode) *UseCase {
	if defaultMode == "" {
		defaultMode = model.PrivacyModeAnonymized
	}
	return &UseCase{
		index:       index,
		settings:    settings,
		forgetter:   forgetter,
		defaultMode: defaultMode,
	}
}

// Logout removes every index entry of owner before returning. The privacy
// setting is kept.
func (u *UseCase) Logout(ctx context.Context, owner model.OwnerID) (int, error) {
	n, err := u.purge(ctx, owner)
	if err != nil {
		return 0, err
	}
	logging.From(ctx).Info("owner logged out", "owner_id", owner, "deleted", n)
	return n, nil
}

// DeleteData removes every index entry and the stored privacy setting of
// owner before returning.
func (u *UseCase) DeleteData(ctx context.Context, owner model.OwnerID) (int, error) {
	n, err := u.purge(ctx, owner)
	if err != nil {
		return 0, err
	}
	if u.settings != nil {
		if err := u.settings.DeleteSettings(ctx, owner); err != nil {
			return n, goerr.Wrap(err, "failed to delete privacy setting", goerr.V("owner_id", owner))
		}
	}
	logging.From(ctx).Info("owner data deleted", "owner_id", owner, "deleted", n)
	return n, nil
}

func (u *UseCase) purge(ctx context.Context, owner model.OwnerID) (int, error) {
	if u.forgetter != nil {
		u.forgetter.Forget(owner)
	}
	n, err := u.index.DeleteOwner(ctx, owner)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete owner entries", goerr.V("owner_id", owner))
	}
	return n, nil
}

// SetMode stores the privacy mode for records ingested from now on.
// Entries already in the index keep the mode they were processed with.
func (u *UseCase) SetMode(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	if u.settings == nil {
		return goerr.New("no settings repository configured")
	}
	if err := u.settings.PutMode(ctx, owner, mode); err != nil {
		return err
	}
	logging.From(ctx).Info("privacy mode changed", "owner_id", owner, "mode", mode)
	return nil
}

// Mode returns the owner's privacy mode, or the default when none is
// stored.
func (u *UseCase) Mode(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, error) {
	if u.settings == nil {
		return u.defaultMode, nil
	}
	mode, found, err := u.settings.GetMode(ctx, owner)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get privacy mode", goerr.V("owner_id", owner))
	}
	if !found {
		return u.defaultMode, nil
	}
	return mode, nil
}
