package cli

import (
	"context"

	"github.com/AnthonyCampos1234/Facsimile/pkg/config"
	"github.com/AnthonyCampos1234/Facsimile/pkg/embedding"
	"github.com/AnthonyCampos1234/Facsimile/pkg/keys"
	"github.com/AnthonyCampos1234/Facsimile/pkg/policy"
	"github.com/AnthonyCampos1234/Facsimile/pkg/privacy"
	"github.com/AnthonyCampos1234/Facsimile/pkg/service/llm"
	"github.com/AnthonyCampos1234/Facsimile/pkg/tokenizer"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/answer"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/ingest"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/lifecycle"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/AnthonyCampos1234/Facsimile/pkg/vectorindex"
	"github.com/m-mizutani/goerr/v2"
)

// pipeline is the assembled set of use cases shared by every command.
type pipeline struct {
	tuning    *config.Config
	index     *vectorindex.Index
	sweeper   *vectorindex.Sweeper
	ingest    *ingest.UseCase
	worker    *ingest.Worker
	answer    *answer.UseCase
	lifecycle *lifecycle.UseCase
	closers   []func()
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// start launches the TTL sweeper and the ingest workers. Both stop when ctx
// is cancelled.
func (p *pipeline) start(ctx context.Context) {
	go p.sweeper.Run(ctx)
	p.worker.Start(ctx)
	p.closers = append(p.closers, p.worker.Stop)
}

func (cfg *appConfig) newPipeline(ctx context.Context) (*pipeline, error) {
	tuning, err := cfg.loadTuning()
	if err != nil {
		return nil, err
	}
	p := &pipeline{tuning: tuning}

	settings, closeRepo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, closeRepo)

	keyService, err := keys.NewHKDF([]byte(cfg.masterSecret), []byte(cfg.keySalt))
	if err != nil {
		p.Close()
		return nil, goerr.Wrap(err, "failed to create key service")
	}
	if cfg.masterSecret == "" {
		logging.From(ctx).Warn("no master secret configured, raw mode records cannot be stored")
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		p.Close()
		return nil, err
	}
	summarizer, err := llm.NewGeminiSummarizer(gemini)
	if err != nil {
		p.Close()
		return nil, err
	}
	embedder, err := cfg.newEmbedder(gemini, tuning.Index.Dimensions)
	if err != nil {
		p.Close()
		return nil, err
	}
	completer, err := cfg.newCompleter(gemini)
	if err != nil {
		p.Close()
		return nil, err
	}
	auditSink, err := cfg.newAuditSink(ctx)
	if err != nil {
		p.Close()
		return nil, err
	}
	ingestPolicy, err := policy.Load(ctx, cfg.policyDir)
	if err != nil {
		p.Close()
		return nil, err
	}

	counter, err := tokenizer.New()
	if err != nil {
		logging.From(ctx).Warn("tokenizer unavailable, estimating token counts", "error", err)
		counter = tokenizer.NewEstimator()
	}

	p.index = vectorindex.New(
		vectorindex.WithTTL(tuning.Index.TTL),
		vectorindex.WithDimensions(tuning.Index.Dimensions),
		vectorindex.WithPurgeBatch(tuning.Index.PurgeBatch),
	)
	p.sweeper = vectorindex.NewSweeper(p.index, tuning.Index.SweepInterval)

	generator := embedding.New(embedder, tuning.Index.Dimensions,
		embedding.WithTimeout(tuning.Embedding.Timeout),
		embedding.WithCache(tuning.Embedding.CacheSize),
	)
	engine := privacy.New(keyService, summarizer)

	p.ingest = ingest.New(engine, generator, p.index, settings,
		ingest.WithPolicy(ingestPolicy),
		ingest.WithDefaultMode(tuning.Privacy.DefaultMode),
	)
	p.worker = ingest.NewWorker(p.ingest, ingest.WorkerConfig{
		Count:       tuning.Worker.Count,
		QueueSize:   tuning.Worker.QueueSize,
		MaxAttempts: tuning.Worker.MaxAttempts,
		MaxBackoff:  tuning.Worker.MaxBackoff,
	})
	p.worker.OnResult = logResult(ctx)

	p.answer = answer.New(generator, p.index, engine, completer,
		answer.WithTopK(tuning.Retrieval.TopK),
		answer.WithContextTokens(tuning.Retrieval.ContextTokens),
		answer.WithCompletionTimeout(tuning.Completion.Timeout),
		answer.WithAuditSink(auditSink),
		answer.WithTokenCounter(counter),
	)
	p.lifecycle = lifecycle.New(p.index, settings, p.worker, tuning.Privacy.DefaultMode)

	return p, nil
}

func logResult(ctx context.Context) func(job ingest.Job, result *ingest.Result, err error) {
	logger := logging.From(ctx)
	return func(job ingest.Job, result *ingest.Result, err error) {
		switch {
		case err != nil:
			// already logged by the worker
		case result.Skipped:
			logger.Debug("record skipped", "owner_id", job.Owner, "record_key", result.Key.String(), "reason", result.Reason)
		default:
			logger.Debug("record ingested", "owner_id", job.Owner, "record_key", result.Key.String(), "mode", result.Mode)
		}
	}
}
