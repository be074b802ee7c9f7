// Package privacy turns normalized records into processed payloads under
// one of the two privacy modes.
package privacy

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

type Engine struct {
	keys       interfaces.KeyService
	summarizer interfaces.Summarizer
}

// New creates a transform engine. summarizer may be nil when only RAW mode
// is used; anonymizing then fails with ErrSummarizationUnavailable.
func New(keys interfaces.KeyService, summarizer interfaces.Summarizer) *Engine {
	return &Engine{
		keys:       keys,
		summarizer: summarizer,
	}
}

// Transform applies exactly one privacy transform to rec.
func (e *Engine) Transform(ctx context.Context, rec *model.Record, mode model.PrivacyMode) (model.Payload, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	switch mode {
	case model.PrivacyModeRaw:
		return e.encrypt(ctx, rec)
	default:
		return e.anonymize(ctx, rec)
	}
}

func (e *Engine) encrypt(ctx context.Context, rec *model.Record) (*model.EncryptedPayload, error) {
	if e.keys == nil {
		return nil, goerr.Wrap(model.ErrEncryptionKeyUnavailable, "no key service configured")
	}
	key, err := e.keys.DataKey(ctx, rec.OwnerID)
	if err != nil {
		return nil, goerr.Wrap(model.WithCause(model.ErrEncryptionKeyUnavailable, err), "failed to get data key",
			goerr.V("owner_id", rec.OwnerID))
	}

	sealed, err := seal(key.Material, rec.CanonicalFields(), additionalData(rec.OwnerID, rec.Key()))
	if err != nil {
		return nil, goerr.Wrap(model.WithCause(model.ErrEncryptionKeyUnavailable, err), "failed to encrypt record",
			goerr.V("record", rec.Key().String()))
	}

	return &model.EncryptedPayload{
		Ciphertext: sealed,
		KeyRef:     key.Ref,
		RecordKey:  rec.Key(),
		Surrogate:  rawSurrogate(rec),
	}, nil
}

func (e *Engine) anonymize(ctx context.Context, rec *model.Record) (*model.AnonymizedPayload, error) {
	if e.summarizer == nil {
		return nil, goerr.Wrap(model.ErrSummarizationUnavailable, "no summarizer configured")
	}

	summary, err := e.summarizer.Summarize(ctx, rec.Source, RenderFields(rec))
	if err != nil {
		return nil, goerr.Wrap(model.WithCause(model.ErrSummarizationUnavailable, err), "failed to summarize record",
			goerr.V("record", rec.Key().String()))
	}
	if summary == nil || strings.TrimSpace(summary.Text) == "" {
		return nil, goerr.Wrap(model.ErrSummarizationUnavailable, "summarizer returned empty summary",
			goerr.V("record", rec.Key().String()))
	}

	reg := newRegistry()
	for _, f := range identifierFields[rec.Source] {
		if v, ok := rec.RawFields[f.name]; ok {
			f.read(reg, v)
		}
	}
	for _, span := range summary.Identifiers {
		if span.Start < 0 || span.End > len(summary.Text) || span.Start >= span.End {
			logging.From(ctx).Debug("ignore out of range identifier span",
				"record", rec.Key().String(), "start", span.Start, "end", span.End)
			continue
		}
		reg.addSpan(summary.Text[span.Start:span.End], span.Kind)
	}
	reg.finalize()

	text := substitute(strings.TrimSpace(summary.Text), reg)
	return &model.AnonymizedPayload{
		Summary:   text,
		Surrogate: anonymizedSurrogate(rec, text),
	}, nil
}

// Decrypt recovers the raw fields of p for owner. It only ever uses the
// key of the requesting owner.
func (e *Engine) Decrypt(ctx context.Context, owner model.OwnerID, p *model.EncryptedPayload) (map[string]string, error) {
	if p.KeyRef.OwnerID != owner {
		return nil, goerr.Wrap(model.ErrDecryptionFailure, "payload belongs to another owner",
			goerr.V("owner_id", owner))
	}
	if e.keys == nil {
		return nil, goerr.Wrap(model.ErrEncryptionKeyUnavailable, "no key service configured")
	}

	key, err := e.keys.DataKey(ctx, owner)
	if err != nil {
		return nil, goerr.Wrap(model.WithCause(model.ErrEncryptionKeyUnavailable, err), "failed to get data key",
			goerr.V("owner_id", owner))
	}
	if key.Ref != p.KeyRef {
		return nil, goerr.Wrap(model.ErrDecryptionFailure, "key reference mismatch",
			goerr.V("owner_id", owner), goerr.V("key_id", p.KeyRef.KeyID))
	}

	return DecryptWithKey(key, p)
}

// DecryptWithKey opens p with the given key material.
func DecryptWithKey(key *model.DataKey, p *model.EncryptedPayload) (map[string]string, error) {
	plaintext, err := open(key.Material, p.Ciphertext, additionalData(p.KeyRef.OwnerID, p.RecordKey))
	if err != nil {
		return nil, err
	}

	var fields map[string]string
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, goerr.Wrap(model.ErrDecryptionFailure, "failed to decode fields")
	}
	return fields, nil
}

// RenderFields renders a record as a source and date header followed by
// FieldLines. It is the text handed to the summarizer.
func RenderFields(rec *model.Record) string {
	var b strings.Builder
	b.WriteString("source: " + rec.Source.Label() + "\n")
	b.WriteString("date: " + rec.Timestamp.UTC().Format("2006-01-02 15:04 MST") + "\n")
	b.WriteString(FieldLines(rec.RawFields))
	return b.String()
}

// FieldLines renders one "name: value" line per field in sorted order.
func FieldLines(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name + ": " + fields[name] + "\n")
	}
	return b.String()
}
