package answer

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"strings"
	"text/template"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/config"
	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/privacy"
	"github.com/AnthonyCampos1234/Facsimile/pkg/tokenizer"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/system.md
var systemPrompt string

//go:embed prompt/answer.md
var answerPromptRaw string

var answerPromptTmpl = template.Must(template.New("answer").Parse(answerPromptRaw))

var ErrEmptyQuery = goerr.New("query is empty")

// Decrypter recovers raw fields of an encrypted payload for its owner.
type Decrypter interface {
	Decrypt(ctx context.Context, owner model.OwnerID, p *model.EncryptedPayload) (map[string]string, error)
}

// QueryEmbedder embeds query text into the index vector space.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type UseCase struct {
	embedder          QueryEmbedder
	index             interfaces.VectorIndex
	decrypter         Decrypter
	completer         interfaces.Completer
	audit             interfaces.AuditSink
	counter           *tokenizer.Counter
	topK              int
	contextTokens     int
	completionTimeout time.Duration
	now               func() time.Time
}

type Option func(*UseCase)

func WithTopK(n int) Option {
	return func(u *UseCase) {
		if n > 0 {
			u.topK = min(n, config.MaxTopK)
		}
	}
}

func WithContextTokens(n int) Option {
	return func(u *UseCase) {
		if n > 0 {
			u.contextTokens = n
		}
	}
}

func WithCompletionTimeout(d time.Duration) Option {
	return func(u *UseCase) {
		if d > 0 {
			u.completionTimeout = d
		}
	}
}

func WithAuditSink(sink interfaces.AuditSink) Option {
	return func(u *UseCase) {
		u.audit = sink
	}
}

func WithTokenCounter(c *tokenizer.Counter) Option {
	return func(u *UseCase) {
		if c != nil {
			u.counter = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(u *UseCase) {
		u.now = now
	}
}

func New(embedder QueryEmbedder, index interfaces.VectorIndex, decrypter Decrypter, completer interfaces.Completer, opts ...Option) *UseCase {
	u := &UseCase{
		embedder:          embedder,
		index:             index,
		decrypter:         decrypter,
		completer:         completer,
		counter:           tokenizer.NewEstimator(),
		topK:              8,
		contextTokens:     2048,
		completionTimeout: 60 * time.Second,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type queryOptions struct {
	topK   int
	search interfaces.SearchQuery
}

// QueryOption narrows a single Answer call.
type QueryOption func(*queryOptions)

// WithLimit overrides the number of entries retrieved, capped at
// config.MaxTopK.
func WithLimit(n int) QueryOption {
	return func(o *queryOptions) {
		if n > 0 {
			o.topK = min(n, config.MaxTopK)
		}
	}
}

func WithSources(sources ...model.Source) QueryOption {
	return func(o *queryOptions) {
		o.search.Sources = append(o.search.Sources, sources...)
	}
}

// WithTimeRange keeps records whose time lies in [since, until]. A zero
// bound is open.
func WithTimeRange(since, until time.Time) QueryOption {
	return func(o *queryOptions) {
		o.search.Since = since
		o.search.Until = until
	}
}

type contextRecord struct {
	Rank   int
	Header string
	Text   string
}

// Answer retrieves the owner's most relevant entries for query and asks
// the completion service to answer from them.
func (u *UseCase) Answer(ctx context.Context, owner model.OwnerID, query string, opts ...QueryOption) (*model.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	qo := &queryOptions{topK: u.topK}
	for _, opt := range opts {
		opt(qo)
	}

	logger := logging.From(ctx).With("owner_id", owner)

	vector, err := u.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, model.ErrEmbeddingServiceUnavailable) {
			return nil, err
		}
		return nil, goerr.Wrap(model.WithCause(model.ErrEmbeddingServiceUnavailable, err), "failed to embed query")
	}

	hits, err := u.index.Search(ctx, owner, vector, qo.topK, qo.search)
	if err != nil {
		return nil, err
	}

	result := &model.Answer{Used: []model.UsedEntry{}}
	var records []contextRecord
	budget := u.contextTokens

	for i, hit := range hits {
		rank := i + 1
		text, err := u.contextText(ctx, owner, hit.Entry)
		if err != nil {
			result.Dropped++
			logger.Warn("drop entry from context",
				"entry_id", hit.Entry.ID,
				"record", hit.Entry.RecordKey.String(),
				"error", err,
			)
			continue
		}

		rec := contextRecord{
			Rank:   rank,
			Header: header(hit.Entry),
			Text:   text,
		}
		used := model.UsedEntry{
			EntryID:   hit.Entry.ID,
			RecordKey: hit.Entry.RecordKey,
			Mode:      hit.Entry.Mode,
			Score:     hit.Score,
			Rank:      rank,
		}

		cost := u.counter.Count(rec.Header) + u.counter.Count(rec.Text)
		if cost > budget {
			if len(records) > 0 {
				logger.Debug("context budget reached", "included", len(records), "remaining", len(hits)-i)
				break
			}
			rec.Text = u.counter.Truncate(rec.Text, max(budget-u.counter.Count(rec.Header), 0))
			used.Truncated = true
			cost = budget
		}

		budget -= cost
		records = append(records, rec)
		result.Used = append(result.Used, used)
	}

	var prompt bytes.Buffer
	if err := answerPromptTmpl.Execute(&prompt, map[string]any{
		"Records": records,
		"Query":   query,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute answer prompt template")
	}

	var contextBlock strings.Builder
	for _, r := range records {
		contextBlock.WriteString(r.Header + "\n" + r.Text + "\n\n")
	}

	text, err := u.complete(ctx, &model.CompletionRequest{
		System:  systemPrompt,
		Prompt:  prompt.String(),
		Context: contextBlock.String(),
		Query:   query,
	})
	if err != nil {
		return nil, err
	}
	result.Text = text

	u.putAudit(ctx, owner, query, result)

	logger.Info("answered query",
		"hits", len(hits),
		"used", len(result.Used),
		"dropped", result.Dropped,
	)
	return result, nil
}

func (u *UseCase) complete(ctx context.Context, req *model.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.completionTimeout)
	defer cancel()

	text, err := u.completer.Complete(ctx, req)
	if err != nil {
		return "", goerr.Wrap(model.WithCause(model.ErrCompletionServiceUnavailable, err), "completion failed")
	}
	return text, nil
}

// contextText resolves and, for RAW entries, decrypts the payload behind
// entry.
func (u *UseCase) contextText(ctx context.Context, owner model.OwnerID, entry *model.IndexEntry) (string, error) {
	payload, err := u.index.Resolve(ctx, owner, entry.PayloadRef)
	if err != nil {
		return "", err
	}

	switch p := payload.(type) {
	case *model.AnonymizedPayload:
		return p.Summary, nil
	case *model.EncryptedPayload:
		if u.decrypter == nil {
			return "", goerr.Wrap(model.ErrDecryptionFailure, "no decrypter configured")
		}
		fields, err := u.decrypter.Decrypt(ctx, owner, p)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(privacy.FieldLines(fields), "\n"), nil
	default:
		return "", goerr.New("unknown payload type", goerr.V("entry_id", entry.ID))
	}
}

func header(e *model.IndexEntry) string {
	return e.Source.Label() + ", " + e.RecordTime.UTC().Format("Monday 2006-01-02 15:04 MST")
}

func (u *UseCase) putAudit(ctx context.Context, owner model.OwnerID, query string, a *model.Answer) {
	if u.audit == nil {
		return
	}

	ids := make([]model.EntryID, len(a.Used))
	for i, e := range a.Used {
		ids[i] = e.EntryID
	}
	sum := sha256.Sum256([]byte(query))

	record := &model.AuditRecord{
		OwnerID:   owner,
		QueryHash: hex.EncodeToString(sum[:]),
		EntryIDs:  ids,
		Dropped:   a.Dropped,
		CreatedAt: u.now().UTC(),
	}
	if err := u.audit.PutAudit(ctx, record); err != nil {
		logging.From(ctx).Warn("failed to write audit record", "owner_id", owner, "error", err)
	}
}
