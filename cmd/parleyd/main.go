// ABOUTME: Entry point for the parleyd chat server
// ABOUTME: Subcommands: serve, init, cleanup, health

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/parley-im/parley/internal/cleanup"
	"github.com/parley-im/parley/internal/config"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/server"
	"github.com/parley-im/parley/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                       _
 _ __   __ _ _ __ ___ | | ___ _   _
| '_ \ / _' | '__/ _ \| |/ _ \ | | |
| |_) | (_| | | |  __/| |  __/ |_| |
| .__/ \__,_|_|  \___||_|\___|\__, |
|_|                           |___/
`

// getConfigPath returns the path to the parleyd config file.
// Priority: PARLEY_CONFIG env var > XDG_CONFIG_HOME/parley/parleyd.yaml > ~/.config/parley/parleyd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARLEY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "parleyd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "parleyd.yaml")
}

// getDataPath returns the path to the parley data directory.
// Priority: XDG_DATA_HOME/parley > ~/.local/share/parley
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "parley")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: parleyd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                Start the chat server")
		fmt.Println("  init                 Write a starter config file")
		fmt.Println("  cleanup [--dry-run]  Run one reconciliation pass")
		fmt.Println("  health               Check server readiness")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "cleanup":
		err = runCleanup(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Instance: %s\n", cfg.Instance.ID)
	fmt.Println()

	logger.Info("starting parleyd",
		"config", configPath,
		"addr", cfg.Server.Addr(),
		"instance_id", cfg.Instance.ID,
	)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// runCleanup executes one reconciler pass against the configured stores and
// prints the report. --dry-run reports without removing anything.
func runCleanup(ctx context.Context) error {
	dryRun := false
	for _, arg := range os.Args[2:] {
		switch arg {
		case "--dry-run", "-n":
			dryRun = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	users, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening relational store: %w", err)
	}
	defer users.Close()

	msgs, err := msgstore.NewMongoStore(ctx, cfg.MessageStore.URI, cfg.MessageStore.Database)
	if err != nil {
		return fmt.Errorf("opening message store: %w", err)
	}
	defer msgs.Close(ctx)

	report := cleanup.New(users, msgs, cfg.Cleanup.RetentionDays, logger).Run(ctx, dryRun)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	fmt.Println(string(out))

	if report.Errors > 0 {
		return fmt.Errorf("cleanup finished with %d errors", report.Errors)
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/readyz", cfg.Server.Addr())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	fmt.Println(string(body))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d", resp.StatusCode)
	}
	return nil
}

// runInit writes a commented starter config with a fresh random token
// secret. Existing files are never overwritten.
func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "parley.db")

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating token secret: %w", err)
	}
	secret := base64.StdEncoding.EncodeToString(secretBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# parleyd configuration
# Generated by parleyd init

server:
  host: "0.0.0.0"
  port: 8080
  # cors_origins:
  #   - "https://chat.example.com"

instance:
  # Unique per instance in a multi-instance deployment.
  # Falls back to the SERVER_ID environment variable.
  id: "server-1"

store:
  path: "%s"

message_store:
  uri: "${MONGO_URI:-mongodb://localhost:27017}"
  database: "parley"

ephemeral:
  addr: "${REDIS_ADDR:-localhost:6379}"
  password: ""
  db: 0

token:
  secret: "%s"
  ttl: "24h"

realtime:
  idle_timeout: "60s"
  send_buffer: 64

pipeline:
  queue_capacity: 10000
  drain_timeout: "10s"

cleanup:
  interval: "1h"
  retention_days: 30

reset:
  token_ttl: "30m"
  rate_window: "1h"
  rate_limit: 5

# An empty host disables SMTP; reset emails are logged instead.
email:
  host: ""
  port: 587
  username: ""
  password: ""
  from: "no-reply@parley.local"

logging:
  level: "info"
  format: "console"
`, dbPath, secret)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println()
	fmt.Println("To start the server:")
	fmt.Println("  parleyd serve")

	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
