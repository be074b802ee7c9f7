package ingest

import (
	"context"

	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/normalizer"
	"github.com/AnthonyCampos1234/Facsimile/pkg/policy"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Transformer turns a record into a payload for the given mode.
type Transformer interface {
	Transform(ctx context.Context, rec *model.Record, mode model.PrivacyMode) (model.Payload, error)
}

// VectorEmbedder produces validated vectors of the index dimension.
type VectorEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Skip reasons reported in Result.Reason.
const (
	ReasonDuplicate = "duplicate"
	ReasonPolicy    = "denied by policy"
	ReasonForgotten = "owner data was deleted while processing"
)

// Result describes what happened to one ingested record.
type Result struct {
	Key     model.RecordKey   `json:"record_key"`
	EntryID model.EntryID     `json:"entry_id,omitempty"`
	Mode    model.PrivacyMode `json:"mode,omitempty"`
	Skipped bool              `json:"skipped"`
	Reason  string            `json:"reason,omitempty"`
}

type UseCase struct {
	transformer Transformer
	embedder    VectorEmbedder
	index       interfaces.VectorIndex
	settings    interfaces.SettingsRepository
	policy      *policy.Policy
	defaultMode model.PrivacyMode
	fence       *fence
}

type Option func(*UseCase)

// WithPolicy sets the ingest policy. nil allows every record.
func WithPolicy(p *policy.Policy) Option {
	return func(u *UseCase) {
		u.policy = p
	}
}

// WithDefaultMode sets the mode used for owners without a stored setting.
func WithDefaultMode(mode model.PrivacyMode) Option {
	return func(u *UseCase) {
		u.defaultMode = mode
	}
}

func New(transformer Transformer, embedder VectorEmbedder, index interfaces.VectorIndex, settings interfaces.SettingsRepository, opts ...Option) *UseCase {
	u := &UseCase{
		transformer: transformer,
		embedder:    embedder,
		index:       index,
		settings:    settings,
		defaultMode: model.PrivacyModeAnonymized,
		fence:       newFence(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Ingest runs one provider payload through normalization, policy,
// transformation and embedding, and inserts it into the index.
func (u *UseCase) Ingest(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*Result, error) {
	gen := u.fence.acquire(owner)
	defer u.fence.release(owner)
	return u.ingest(ctx, owner, source, payload, gen)
}

// Forget invalidates ingestion that is queued or in flight for owner.
// Returns after any insert already past its generation check has finished.
func (u *UseCase) Forget(owner model.OwnerID) {
	u.fence.bump(owner)
}


func (u *UseCase) ingest(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte, gen uint64) (*Result, error) {
	rec, err := normalizer.Normalize(owner, source, payload)
	if err != nil {
		return nil, err
	}

	key := rec.Key()
	logger := logging.From(ctx).With("owner_id", owner, "record", key.String())
	result := &Result{Key: key}

	decision, err := u.policy.Evaluate(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !decision.Allow {
		result.Skipped = true
		result.Reason = ReasonPolicy
		if decision.Reason != "" {
			result.Reason = decision.Reason
		}
		logger.Info("record skipped by policy", "reason", result.Reason)
		return result, nil
	}

	if u.index.Contains(ctx, owner, key) {
		result.Skipped = true
		result.Reason = ReasonDuplicate
		logger.Debug("record already indexed")
		return result, nil
	}

	mode, err := u.modeOf(ctx, owner)
	if err != nil {
		return nil, err
	}
	result.Mode = mode

	data, err := u.transformer.Transform(ctx, rec, mode)
	if err != nil {
		return nil, err
	}

	vector, err := u.embedder.Embed(ctx, data.SurrogateText())
	if err != nil {
		return nil, err
	}

	entry := &model.IndexEntry{
		OwnerID:    owner,
		RecordKey:  key,
		RecordTime: rec.Timestamp,
		Vector:     vector,
	}

	current, err := u.fence.guard(owner, gen, func() error {
		return u.index.Insert(ctx, entry, data)
	})
	if err != nil {
		return nil, err
	}
	if !current {
		result.Skipped = true
		result.Reason = ReasonForgotten
		logger.Info("record discarded after owner deletion")
		return result, nil
	}

	result.EntryID = entry.ID
	logger.Info("record ingested", "entry_id", entry.ID, "mode", mode)
	return result, nil
}

func (u *UseCase) modeOf(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, error) {
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
