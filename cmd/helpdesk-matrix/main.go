// ABOUTME: Entry point for the helpdesk-matrix bridge
// ABOUTME: Wires the Matrix gateway, assistant provider and orchestrator together

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/2389/helpdesk-bridge/internal/attach"
	"github.com/2389/helpdesk-bridge/internal/config"
	"github.com/2389/helpdesk-bridge/internal/convstore"
	"github.com/2389/helpdesk-bridge/internal/cost"
	"github.com/2389/helpdesk-bridge/internal/gateway"
	"github.com/2389/helpdesk-bridge/internal/ingest"
	"github.com/2389/helpdesk-bridge/internal/lang"
	"github.com/2389/helpdesk-bridge/internal/orchestrator"
	"github.com/2389/helpdesk-bridge/internal/provider"
	"github.com/2389/helpdesk-bridge/internal/ratelimit"
	"github.com/2389/helpdesk-bridge/internal/usagelog"
)

const banner = `
    ╭──────────────────────────────────────╮
    │                                      │
    │   ╻ ╻┏━╸╻  ┏━┓╺┳┓┏━╸┏━┓╻┏           │
    │   ┣━┫┣╸ ┃  ┣━┛ ┃┃┣╸ ┗━┓┣┻┓          │
    │   ╹ ╹┗━╸┗━╸╹  ╺┻┛┗━╸┗━┛╹ ╹          │
    │                                      │
    │       helpdesk-matrix bridge         │
    │                                      │
    ╰──────────────────────────────────────╯
`

// getConfigPath returns the path to the bridge config file.
// Priority: HELPDESK_CONFIG env var > XDG_CONFIG_HOME/helpdesk/bridge.toml > ~/.config/helpdesk/bridge.toml
func getConfigPath() string {
	if envPath := os.Getenv("HELPDESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bridge.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "helpdesk", "bridge.toml")
}

// getDataPath returns the path for persisted state (conversation log, usage
// ledger, refresh timestamp).
// Priority: XDG_DATA_HOME/helpdesk > ~/.local/share/helpdesk
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "helpdesk")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()
	dataPath := getDataPath()

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Assistant:  %s\n", cfg.Assistant.AssistantID)
	fmt.Println()

	pricing, err := cost.LoadTable(resolvePath(configPath, cfg.Assistant.PricingFile))
	if err != nil {
		return fmt.Errorf("loading pricing table: %w", err)
	}

	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return fmt.Errorf("creating matrix client: %w", err)
	}

	gw := gateway.NewMatrix(client, cfg.Matrix.Homeserver, cfg.Matrix.AccessToken,
		cfg.Matrix.OperatorID, cfg.Limits.MaxMessageChars, logger)

	prov := provider.NewOpenAI(provider.Config{
		APIKey:              cfg.Assistant.APIKey,
		BaseURL:             cfg.Assistant.BaseURL,
		AssistantID:         cfg.Assistant.AssistantID,
		SummaryModel:        cfg.Assistant.SummaryModel,
		MaxCompletionTokens: cfg.Assistant.MaxCompletionTokens,
		RunTimeout:          cfg.Assistant.RunTimeout,
		PollInterval:        cfg.Assistant.PollInterval,
	}, logger)

	storePath := cfg.Storage.ConversationFile
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(dataPath, storePath)
	}
	logPath := cfg.Storage.LogFile
	if logPath != "" && !filepath.IsAbs(logPath) {
		logPath = filepath.Join(dataPath, logPath)
	}
	store := convstore.Open(storePath, logPath, cfg.Limits.StorageCapacityGiB, logger)

	var ledger *usagelog.Ledger
	if cfg.Storage.UsageDB != "" {
		dbPath := cfg.Storage.UsageDB
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(dataPath, dbPath)
		}
		ledger, err = usagelog.Open(dbPath, logger)
		if err != nil {
			return fmt.Errorf("opening usage ledger: %w", err)
		}
		defer ledger.Close()
	}

	var refresher *ingest.Refresher
	if cfg.Knowledge.StateFile != "" {
		statePath := cfg.Knowledge.StateFile
		if !filepath.IsAbs(statePath) {
			statePath = filepath.Join(dataPath, statePath)
		}
		refresher = ingest.New(statePath, cfg.Knowledge.MaxAge, cfg.Knowledge.RefreshCommand, logger)
	}

	orch := orchestrator.New(orchestrator.Options{
		Gateway:     gw,
		Provider:    prov,
		Store:       store,
		Limiter:     ratelimit.New(gw, logger),
		Attachments: attach.New(cfg.Limits.MaxAttachments, cfg.Limits.MaxImageDimension, logger),
		Detector:    lang.NewDetector(cfg.Language.Default, cfg.Language.MinConfidence, cfg.Language.MinWords),
		Translator:  lang.NewHTTPTranslator(cfg.Language.TranslatorURL),
		Pricing:     pricing,
		Ledger:      ledger,
		Refresher:   refresher,
		Commands: orchestrator.Commands{
			Help:       cfg.Commands.Help,
			Review:     cfg.Commands.Review,
			Correction: cfg.Commands.Correction,
			Refresh:    cfg.Commands.Refresh,
			LastUpdate: cfg.Commands.LastUpdate,
		},
		Privileged:   cfg.Matrix.PrivilegedUsers,
		MaxUserTurns: cfg.Limits.MaxUserTurns,
		Logger:       logger,
	})

	bridge := NewBridge(cfg, client, orch, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting bridge")
	return bridge.Run(ctx)
}

// resolvePath interprets rel against the config file's directory when it is
// not absolute.
func resolvePath(configPath, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(filepath.Dir(configPath), rel)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
