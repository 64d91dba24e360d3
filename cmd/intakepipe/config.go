package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/extraction"
	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/genai"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/schema"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for IntakePipe state data
	DefaultStateDir = ".intakepipe"
	// DefaultExtractTimeout bounds one extraction call
	DefaultExtractTimeout = flow.DefaultExtractTimeout
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Config holds environment configuration. Command-line flags override it.
type Config struct {
	StateDir         string
	SchemaPath       string
	DBDSN            string
	StoreBackend     string
	Provider         string
	OpenAIKey        string
	GeminiKey        string
	Model            string
	InstructionsPath string
	ExtractTimeout   time.Duration
	AlwaysNew        bool
	Debug            bool
}

// initializeLogger sends structured logs to w so stdout carries only the dialogue.
func initializeLogger(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         util.FirstEnv("INTAKE_STATE_DIR"),
		SchemaPath:       util.FirstEnv("INTAKE_SCHEMA"),
		DBDSN:            util.FirstEnv("INTAKE_DB_DSN", "DATABASE_URL"),
		StoreBackend:     strings.ToLower(util.FirstEnv("INTAKE_STORE")),
		Provider:         strings.ToLower(util.FirstEnv("INTAKE_LLM_PROVIDER")),
		OpenAIKey:        util.FirstEnv("OPENAI_API_KEY"),
		GeminiKey:        util.FirstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		Model:            util.FirstEnv("INTAKE_MODEL"),
		InstructionsPath: util.FirstEnv("INTAKE_AGENT_INSTRUCTIONS"),
		ExtractTimeout:   util.ParseDurationEnv("INTAKE_EXTRACT_TIMEOUT", DefaultExtractTimeout),
		AlwaysNew:        util.ParseBoolEnv("INTAKE_ALWAYS_NEW", false),
		Debug:            util.ParseBoolEnv("INTAKE_DEBUG", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INTAKE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"INTAKE_STATE_DIR", config.StateDir,
		"INTAKE_SCHEMA", config.SchemaPath,
		"INTAKE_DB_DSN_SET", config.DBDSN != "",
		"INTAKE_STORE", config.StoreBackend,
		"INTAKE_LLM_PROVIDER", config.Provider,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"INTAKE_MODEL", config.Model,
		"INTAKE_EXTRACT_TIMEOUT", config.ExtractTimeout,
		"INTAKE_ALWAYS_NEW", config.AlwaysNew,
		"INTAKE_DEBUG", config.Debug)

	return config
}

// resolveProvider picks the extraction provider. Without an explicit choice the
// first provider with a key wins.
func resolveProvider(cfg Config) (string, error) {
	switch cfg.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderNone:
		return cfg.Provider, nil
	case "":
		switch {
		case cfg.OpenAIKey != "":
			return ProviderOpenAI, nil
		case cfg.GeminiKey != "":
			return ProviderGemini, nil
		default:
			return ProviderNone, nil
		}
	default:
		return "", fmt.Errorf("unknown LLM provider %q (want openai, gemini or none)", cfg.Provider)
	}
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(cfg Config) []store.Option {
	var storeOpts []store.Option
	if cfg.DBDSN != "" {
		if store.DetectDSNType(cfg.DBDSN) == store.BackendPostgres {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(cfg.DBDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", cfg.DBDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(cfg.DBDSN))
		}
	} else {
		slog.Debug("No database DSN provided, using JSON files in the state directory", "state_dir", cfg.StateDir)
	}
	return append(storeOpts, store.WithDir(cfg.StateDir))
}

// buildGenAIOptions constructs GenAI configuration options for provider
func buildGenAIOptions(cfg Config, provider string) []genai.Option {
	var genaiOpts []genai.Option
	switch provider {
	case ProviderOpenAI:
		genaiOpts = append(genaiOpts, genai.WithAPIKey(cfg.OpenAIKey))
	case ProviderGemini:
		genaiOpts = append(genaiOpts, genai.WithAPIKey(cfg.GeminiKey))
	}
	if cfg.Model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(cfg.Model))
	}
	if cfg.Debug {
		genaiOpts = append(genaiOpts, genai.WithDebug(cfg.StateDir))
	}
	return genaiOpts
}

// buildGenerator returns the model client, or nil when extraction is disabled.
func buildGenerator(ctx context.Context, cfg Config) (genai.Generator, error) {
	provider, err := resolveProvider(cfg)
	if err != nil {
		return nil, err
	}
	opts := buildGenAIOptions(cfg, provider)
	switch provider {
	case ProviderOpenAI:
		client, err := genai.NewClient(opts...)
		if err != nil {
			return nil, err
		}
		slog.Info("LLM extraction enabled", "provider", provider, "model", client.Model())
		return client, nil
	case ProviderGemini:
		client, err := genai.NewGeminiClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		slog.Info("LLM extraction enabled", "provider", provider, "model", client.Model())
		return client, nil
	default:
		slog.Info("LLM extraction disabled; only deterministic answers will be captured")
		return nil, nil
	}
}

// loadSchema reads the configured schema, or the built-in one.
func loadSchema(cfg Config) (*models.Schema, error) {
	if cfg.SchemaPath == "" {
		return schema.Default()
	}
	return schema.Load(cfg.SchemaPath)
}

// buildFlowOptions wires the extraction collaborator and the store into the flow.
func buildFlowOptions(ctx context.Context, cfg Config, st store.Store) ([]flow.Option, error) {
	flowOpts := []flow.Option{
		flow.WithSaver(st),
		flow.WithExtractTimeout(cfg.ExtractTimeout),
	}

	gen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return flowOpts, nil
	}

	instructions, err := extraction.LoadInstructions(cfg.InstructionsPath)
	if err != nil {
		return nil, err
	}
	extractor := extraction.NewLLMExtractor(gen, extraction.WithInstructions(instructions))
	return append(flowOpts, flow.WithExtractor(extractor)), nil
}
