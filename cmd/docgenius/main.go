// Package main is the docgenius CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/docgenius/internal/config"
	"github.com/hyperjump/docgenius/internal/embedding"
	"github.com/hyperjump/docgenius/internal/indexer"
	"github.com/hyperjump/docgenius/internal/ingest"
	"github.com/hyperjump/docgenius/internal/llm"
	"github.com/hyperjump/docgenius/internal/session"
	"github.com/hyperjump/docgenius/internal/tracing"
	"github.com/hyperjump/docgenius/internal/vector"
	"github.com/hyperjump/docgenius/pkg/utils"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "index":
		runIndex(args)
	case "retrieve":
		runRetrieve(args)
	case "ask":
		runAsk(args)
	case "chat":
		runChat(args)
	case "serve", "server":
		runServe(args)
	case "status":
		runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("docgenius version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`docgenius - chat with your documents

Usage:
  docgenius <command> [flags]

Commands:
  index      Build the index from the source folder and/or URLs
  retrieve   Show the chunks most similar to a question
  ask        Answer one question from the index
  chat       Interactive chat (/clear, /history, /rebuild, /quit)
  serve      Start the HTTP API
  status     Show the persisted index
  version    Print the version
  help       Show this help

Configuration is read from -config (or ./config.yaml), then .env, then the environment.
Run "docgenius <command> -h" for command flags.
`)
}

// loadConfig loads config from path. An empty path uses config.yaml in the current directory
// when it exists, and defaults plus environment otherwise. It returns the path actually used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// app holds the components every command shares.
type app struct {
	cfg             *config.Config
	logger          *zap.Logger
	embedder        embedding.Embedder
	indexer         *indexer.Indexer
	shutdownTracing tracing.ShutdownFunc
}

// setup loads and validates configuration and builds the shared components. With needLLM,
// missing LLM credentials fail here, before anything is indexed or embedded.
func setup(configPath string, debug, needLLM bool) (*app, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if needLLM {
		if err := cfg.ValidateLLM(); err != nil {
			return nil, err
		}
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewFileLogger(debugMode, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	shutdown, err := tracing.Init(context.Background(), cfg.Tracing, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	e, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	loader := ingest.NewLoader(cfg.Ingest, ingest.WithLogger(logger))
	ix, err := indexer.New(cfg, loader, e, indexer.WithLogger(logger))
	if err != nil {
		_ = e.Close()
		_ = logger.Sync()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, embedder: e, indexer: ix, shutdownTracing: shutdown}, nil
}

func (a *app) Close() {
	if err := a.embedder.Close(); err != nil {
		a.logger.Debug("embedder close failed", zap.Error(err))
	}
	if a.shutdownTracing != nil {
		_ = a.shutdownTracing(context.Background())
	}
	_ = a.logger.Sync()
}

// defaultSources is the configured source folder.
func (a *app) defaultSources() ingest.Sources {
	return ingest.Sources{Folder: a.cfg.Storage.SourceDir}
}

// loadPersisted returns the index saved in the index directory, or nil when none was saved.
func (a *app) loadPersisted(ctx context.Context) (*indexer.Snapshot, error) {
	if !vector.Exists(a.cfg.Storage.IndexDir) {
		return nil, nil
	}
	snap, err := a.indexer.Load(ctx, a.cfg.Storage.IndexDir)
	if err != nil {
		if errors.Is(err, indexer.ErrEmbedderMismatch) {
			return nil, fmt.Errorf("%w; run \"docgenius index\" to rebuild", err)
		}
		return nil, err
	}
	a.logger.Debug("index loaded", zap.String("dir", a.cfg.Storage.IndexDir), zap.Int("chunks", snap.Size()))
	return snap, nil
}

// newSession creates a session that persists its builds to the index directory.
func (a *app) newSession(id string, gen llm.Generator) *session.Session {
	return session.New(a.indexer, a.embedder, gen, a.cfg.Retrieval,
		session.WithID(id),
		session.WithLogger(a.logger),
		session.WithPersistDir(a.cfg.Storage.IndexDir))
}

// newGenerator builds the configured LLM client.
func (a *app) newGenerator() (llm.Generator, error) {
	gen, err := llm.New(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("llm ready", zap.String("name", gen.Name()))
	return gen, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// urlList is a repeatable -url flag.
type urlList []string

func (u *urlList) String() string { return strings.Join(*u, ",") }

func (u *urlList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*u = append(*u, part)
		}
	}
	return nil
}

// joinQuery joins positional args so multi-word questions work with or without quotes.
func joinQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that follow the question to the front so flag.Parse sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}
