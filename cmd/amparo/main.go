package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/amparo-ai/amparo/internal/api"
	"github.com/amparo-ai/amparo/internal/classify"
	"github.com/amparo-ai/amparo/internal/flow"
	"github.com/amparo-ai/amparo/internal/gate"
	"github.com/amparo-ai/amparo/internal/genai"
	"github.com/amparo-ai/amparo/internal/notify"
	"github.com/amparo-ai/amparo/internal/store"
	"github.com/amparo-ai/amparo/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Amparo state data
	DefaultStateDir = "/var/lib/amparo"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "amparo.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engine, err := buildEngine(flags, st)
	if err != nil {
		slog.Error("Failed to initialize flow engine", "error", err)
		os.Exit(1)
	}
	server := api.NewServer(engine, st, buildAPIOptions(flags)...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Amparo with configured modules")
	if err := server.Run(ctx); err != nil {
		slog.Error("Amparo failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Amparo exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	OpenAIKey     string
	OpenAIModel   string
	ClassifierURL string
	APIAddr       string
	Timezone      string
	FlowUseLLM    bool
	DecoderOpenAI bool
	GateUseLLM    bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	openaiModel   *string
	classifierURL *string
	apiAddr       *string
	timezone      *string
	flowUseLLM    *bool
	decoderOpenAI *bool
	gateUseLLM    *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("AMPARO_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		ClassifierURL: os.Getenv("CLASSIFIER_URL"),
		APIAddr:       os.Getenv("API_ADDR"),
		Timezone:      os.Getenv("AMPARO_TIMEZONE"),
		FlowUseLLM:    util.ParseBoolEnv("FLOW_USE_LLM", true),
		DecoderOpenAI: util.ParseBoolEnv("DECODER_USE_OPENAI", true),
		GateUseLLM:    util.ParseBoolEnv("GATE_USE_LLM", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No AMPARO_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	if config.Timezone == "" {
		config.Timezone = flow.DefaultTimezone
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"AMPARO_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"CLASSIFIER_URL_SET", config.ClassifierURL != "",
		"API_ADDR", config.APIAddr,
		"AMPARO_TIMEZONE", config.Timezone,
		"FLOW_USE_LLM", config.FlowUseLLM,
		"DECODER_USE_OPENAI", config.DecoderOpenAI,
		"GATE_USE_LLM", config.GateUseLLM)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for Amparo data (overrides $AMPARO_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the store (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI model (overrides $OPENAI_MODEL)"),
		classifierURL: flag.String("classifier-url", config.ClassifierURL, "classification gateway base URL (overrides $CLASSIFIER_URL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		timezone:      flag.String("timezone", config.Timezone, "IANA timezone for reminder dates (overrides $AMPARO_TIMEZONE)"),
		flowUseLLM:    flag.Bool("flow-use-llm", config.FlowUseLLM, "enable the LLM advisory flow validator (overrides $FLOW_USE_LLM)"),
		decoderOpenAI: flag.Bool("decoder-use-openai", config.DecoderOpenAI, "generate replies with OpenAI instead of templates (overrides $DECODER_USE_OPENAI)"),
		gateUseLLM:    flag.Bool("gate-use-llm", config.GateUseLLM, "enable the LLM safety gate (overrides $GATE_USE_LLM)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"classifierURL_set", *flags.classifierURL != "",
		"apiAddr", *flags.apiAddr,
		"timezone", *flags.timezone,
		"flowUseLLM", *flags.flowUseLLM,
		"decoderOpenAI", *flags.decoderOpenAI,
		"gateUseLLM", *flags.gateUseLLM)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStore picks the storage backend from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildEngine wires the flow engine from the configured collaborators.
func buildEngine(flags Flags, st store.Store) (*flow.Engine, error) {
	cfg := flow.DefaultConfig()
	cfg.Timezone = *flags.timezone

	var genaiClient genai.ClientInterface
	if *flags.openaiKey != "" {
		genaiOpts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
		if *flags.openaiModel != "" {
			genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
		}
		client, err := genai.NewClient(genaiOpts...)
		if err != nil {
			slog.Warn("Could not initialize OpenAI client, LLM features disabled", "error", err)
		} else {
			genaiClient = client
		}
	} else {
		slog.Info("No OpenAI API key configured, LLM features disabled")
	}

	var classifyOpts []classify.Option
	if *flags.classifierURL != "" {
		classifyOpts = append(classifyOpts, classify.WithBaseURL(*flags.classifierURL))
	}
	classifier, err := classify.NewClient(classifyOpts...)
	if err != nil {
		return nil, err
	}

	var g gate.Gate = gate.BypassGate{}
	if *flags.gateUseLLM && genaiClient != nil {
		g = gate.NewOpenAIGate(genaiClient)
	}

	var validator *flow.Validator
	if *flags.flowUseLLM && genaiClient != nil {
		cfg.AdvisoryEnabled = true
		validator = flow.NewValidator(genaiClient, cfg.ValidatorContextTurns)
	}

	var decoderClient genai.ClientInterface
	if *flags.decoderOpenAI && genaiClient != nil {
		decoderClient = genaiClient
	}
	decoder := flow.NewReplyGenerator(decoderClient, cfg.DecoderContextTurns)

	var notifier notify.Notifier
	twilioNotifier, err := notify.NewTwilioNotifier()
	if err != nil {
		slog.Info("Twilio not configured, escalation alerts disabled", "error", err)
		notifier = notify.NoopNotifier{}
	} else {
		notifier = twilioNotifier
	}

	extractor := flow.NewExtractor(cfg.Timezone)
	return flow.NewEngine(cfg, st, classifier, g, validator, extractor, decoder, notifier), nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
