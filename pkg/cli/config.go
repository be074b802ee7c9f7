package cli

import (
	"context"
	"os"

	"github.com/AnthonyCampos1234/Facsimile/pkg/adapter"
	"github.com/AnthonyCampos1234/Facsimile/pkg/config"
	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/repository"
	"github.com/AnthonyCampos1234/Facsimile/pkg/service/audit"
	"github.com/AnthonyCampos1234/Facsimile/pkg/service/llm"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// appConfig holds configuration values
type appConfig struct {
	logLevel   string
	logFormat  string
	configPath string

	// Key service
	masterSecret string
	keySalt      string

	// Repository
	project  string
	database string

	// Adapters
	completion      string
	embedding       string
	geminiProject   string
	geminiLocation  string
	geminiModel     string
	geminiEmbedding string
	anthropicAPIKey string
	claudeModel     string
	openaiAPIKey    string
	openaiBaseURL   string
	openaiModel     string
	openaiEmbedding string

	// Ingest and audit
	policyDir   string
	auditBucket string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *appConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("FACSIMILE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("FACSIMILE_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to pipeline tuning file (YAML)",
			Sources:     cli.EnvVars("FACSIMILE_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "master-secret",
			Usage:       "Master secret for per-owner data keys; raw mode is unavailable without it",
			Sources:     cli.EnvVars("FACSIMILE_MASTER_SECRET"),
			Destination: &cfg.masterSecret,
		},
		&cli.StringFlag{
			Name:        "key-salt",
			Usage:       "Salt mixed into key derivation",
			Value:       "facsimile",
			Sources:     cli.EnvVars("FACSIMILE_KEY_SALT"),
			Destination: &cfg.keySalt,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID for Firestore settings; in-memory settings when empty",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego ingest policies",
			Sources:     cli.EnvVars("FACSIMILE_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "audit-bucket",
			Usage:       "Cloud Storage bucket for answer audit records; audit goes to the log when empty",
			Sources:     cli.EnvVars("FACSIMILE_AUDIT_BUCKET"),
			Destination: &cfg.auditBucket,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *appConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "completion",
			Usage:       "Completion provider (gemini, claude, openai)",
			Value:       "gemini",
			Sources:     cli.EnvVars("FACSIMILE_COMPLETION"),
			Destination: &cfg.completion,
		},
		&cli.StringFlag{
			Name:        "embedding",
			Usage:       "Embedding provider (gemini, openai)",
			Value:       "gemini",
			Sources:     cli.EnvVars("FACSIMILE_EMBEDDING"),
			Destination: &cfg.embedding,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini generative model",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-embedding-model",
			Usage:       "Gemini embedding model",
			Sources:     cli.EnvVars("GEMINI_EMBEDDING_MODEL"),
			Destination: &cfg.geminiEmbedding,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model",
			Sources:     cli.EnvVars("CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Base URL of an OpenAI-compatible API",
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI chat model",
			Sources:     cli.EnvVars("OPENAI_MODEL"),
			Destination: &cfg.openaiModel,
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Usage:       "OpenAI embedding model",
			Sources:     cli.EnvVars("OPENAI_EMBEDDING_MODEL"),
			Destination: &cfg.openaiEmbedding,
		},
	}
}

// setupLogger installs the configured logger as default and into ctx
func (cfg *appConfig) setupLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, cfg.logFormat, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

func (cfg *appConfig) loadTuning() (*config.Config, error) {
	tuning, err := config.Load(cfg.configPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load pipeline config")
	}
	return tuning, nil
}

// newRepository creates the settings repository. Without a project the
// settings live in memory for the lifetime of the process.
func (cfg *appConfig) newRepository(ctx context.Context) (interfaces.SettingsRepository, func(), error) {
	if cfg.project == "" {
		logging.From(ctx).Warn("no project configured, privacy settings are kept in memory")
		return repository.NewMemory(), func() {}, nil
	}
	if cfg.database == "" {
		return nil, nil, goerr.New("database is required")
	}

	repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, func() { _ = repo.Close() }, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *appConfig) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel),
		adapter.WithEmbeddingModel(cfg.geminiEmbedding),
	)
}

// newOpenAI creates a new OpenAI adapter instance
func (cfg *appConfig) newOpenAI() (adapter.OpenAI, error) {
	if cfg.openaiAPIKey == "" {
		return nil, goerr.New("openai-api-key is required")
	}
	return adapter.NewOpenAI(cfg.openaiAPIKey, cfg.openaiBaseURL,
		adapter.WithOpenAIChatModel(cfg.openaiModel),
		adapter.WithOpenAIEmbeddingModel(cfg.openaiEmbedding),
	), nil
}

func (cfg *appConfig) newCompleter(gemini adapter.Gemini) (interfaces.Completer, error) {
	switch cfg.completion {
	case "gemini":
		return llm.NewGeminiCompleter(gemini), nil
	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		return llm.NewClaudeCompleter(adapter.NewClaude(cfg.anthropicAPIKey, adapter.WithClaudeModel(cfg.claudeModel))), nil
	case "openai":
		client, err := cfg.newOpenAI()
		if err != nil {
			return nil, err
		}
		return llm.NewOpenAICompleter(client), nil
	default:
		return nil, goerr.New("unknown completion provider", goerr.V("completion", cfg.completion))
	}
}

func (cfg *appConfig) newEmbedder(gemini adapter.Gemini, dimensions int) (interfaces.Embedder, error) {
	switch cfg.embedding {
	case "gemini":
		return llm.NewEmbedder(gemini, dimensions), nil
	case "openai":
		client, err := cfg.newOpenAI()
		if err != nil {
			return nil, err
		}
		return llm.NewEmbedder(client, dimensions), nil
	default:
		return nil, goerr.New("unknown embedding provider", goerr.V("embedding", cfg.embedding))
	}
}

// newAuditSink writes audit records to Cloud Storage when a bucket is set
func (cfg *appConfig) newAuditSink(ctx context.Context) (interfaces.AuditSink, error) {
	if cfg.auditBucket == "" {
		return audit.LogSink{}, nil
	}
	storage, err := adapter.NewStorage(ctx, cfg.auditBucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return audit.NewStorageSink(storage, "audit"), nil
}
