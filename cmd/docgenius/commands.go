package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/docgenius/internal/cli"
	"github.com/hyperjump/docgenius/internal/indexer"
	"github.com/hyperjump/docgenius/internal/ingest"
	"github.com/hyperjump/docgenius/internal/rag"
	"github.com/hyperjump/docgenius/internal/server"
	"github.com/hyperjump/docgenius/internal/session"
	"github.com/hyperjump/docgenius/internal/storage"
	"github.com/hyperjump/docgenius/internal/vector"
	"github.com/hyperjump/docgenius/internal/watcher"
)

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

func runIndex(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	folder := fs.String("folder", "", "source folder (default: storage.source_dir)")
	var urls urlList
	fs.Var(&urls, "url", "web page to index (repeatable, or comma-separated)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := parseFormat(*output)

	a, err := setup(*configPath, *debug, false)
	if err != nil {
		fatalf("%v", err)
	}
	defer a.Close()

	src := ingest.Sources{Folder: *folder, URLs: urls}
	if src.Empty() {
		src = a.defaultSources()
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := a.newSession("cli", nil)
	report, _, err := sess.Build(ctx, src)
	if err != nil {
		fatalf("Indexing failed: %v", err)
	}
	if err := cli.WriteBuildReport(os.Stdout, report, format); err != nil {
		fatalf("Output failed: %v", err)
	}
	if format == cli.OutputText {
		fmt.Printf("Saved to %s\n", a.cfg.Storage.IndexDir)
	}
}

func runRetrieve(args []string) {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	k := fs.Int("k", 0, "number of chunks (default: retrieval.top_k)")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: docgenius retrieve [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(args))
	query := joinQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*output)

	a, err := setup(*configPath, *debug, false)
	if err != nil {
		fatalf("%v", err)
	}
	defer a.Close()

	ctx := context.Background()
	snap, err := a.loadPersisted(ctx)
	if err != nil {
		fatalf("Failed to load index: %v", err)
	}
	defer snap.Close()

	retriever := rag.NewRetrieverFromConfig(a.cfg.Retrieval, rag.StaticProvider{Snap: snap}, a.embedder,
		rag.WithRetrieverLogger(a.logger))
	if *k <= 0 {
		*k = retriever.TopK()
	}
	res, err := retriever.Retrieve(ctx, query, *k)
	if err != nil {
		fatalf("Retrieval failed: %v", err)
	}
	if err := cli.WriteRetrieval(os.Stdout, query, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	k := fs.Int("k", 0, "number of chunks given to the model (default: retrieval.top_k)")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: docgenius ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(args))
	query := joinQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*output)

	a, err := setup(*configPath, *debug, true)
	if err != nil {
		fatalf("%v", err)
	}
	defer a.Close()
	gen, err := a.newGenerator()
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sess := a.newSession("cli", gen)
	snap, err := a.loadPersisted(ctx)
	if err != nil {
		fatalf("Failed to load index: %v", err)
	}
	if snap != nil {
		defer snap.Close()
		sess.Install(snap)
	}
	ans, _, err := sess.AskK(ctx, query, *k)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	a, err := setup(*configPath, *debug, true)
	if err != nil {
		fatalf("%v", err)
	}
	defer a.Close()
	gen, err := a.newGenerator()
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	sess := a.newSession("cli", gen)
	snap, err := a.loadPersisted(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if snap != nil {
		sess.Install(snap)
	}
	repl := &chatREPL{
		session: sess,
		sources: a.defaultSources(),
		in:      os.Stdin,
		out:     os.Stdout,
	}
	if err := repl.Run(ctx); err != nil {
		fatalf("%v", err)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "rebuild the shared index when the source folder changes")
	_ = fs.Parse(args)

	a, err := setup(*configPath, *debug, true)
	if err != nil {
		fatalf("%v", err)
	}
	defer a.Close()
	logger := a.logger
	gen, err := a.newGenerator()
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry(a.cfg.Session.TTL, a.cfg.Session.CleanupInterval, func(id string) *session.Session {
		return session.New(a.indexer, a.embedder, gen, a.cfg.Retrieval,
			session.WithID(id), session.WithLogger(logger))
	}, logger)
	base, err := a.loadPersisted(ctx)
	if err != nil {
		logger.Warn("persisted index not loaded", zap.Error(err))
	}
	if base != nil {
		registry.SetBase(base)
		logger.Info("shared index loaded", zap.Int("chunks", base.Size()))
	}

	if *watch || a.cfg.Watch.Enabled {
		w := watcher.New(a.cfg.Storage.SourceDir, func(ctx context.Context, paths []string) {
			snap, report, err := a.indexer.Build(ctx, a.defaultSources())
			if err != nil {
				logger.Warn("rebuild after change failed", zap.Strings("paths", paths), zap.Error(err))
				return
			}
			if err := indexer.Persist(ctx, a.cfg.Storage.IndexDir, snap); err != nil {
				logger.Warn("rebuilt index not saved", zap.Error(err))
			}
			registry.Broadcast(snap)
			logger.Info("index rebuilt after change", zap.Int("chunks", report.Chunks), zap.Int("failures", report.Ingest.FailureCount()))
		},
			watcher.WithLogger(logger),
			watcher.WithDebounce(a.cfg.Watch.Debounce),
			watcher.WithRecursive(a.cfg.Watch.RecursiveOrDefault()),
			watcher.WithExtensions(a.cfg.Ingest.Extensions...),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(registry, a.cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := parseFormat(*output)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	st, err := indexStatus(context.Background(), cfg.Storage.IndexDir)
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// indexStatus describes the index persisted in dir without loading its vectors.
func indexStatus(ctx context.Context, dir string) (cli.Status, error) {
	st := cli.Status{IndexDir: dir, FAISSAvailable: vector.IsFAISSAvailable()}
	if !vector.Exists(dir) {
		return st, nil
	}
	meta, err := vector.ReadMeta(ctx, dir)
	if err != nil {
		return st, err
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, vector.ChunksFile))
	if err != nil {
		return st, err
	}
	defer store.Close()
	sources, err := store.ListSources(ctx)
	if err != nil {
		return st, err
	}
	st.Built = true
	st.Meta = meta
	st.Sources = sources
	if n, err := storage.DiskUsageBytes(dir); err == nil {
		st.DiskUsageBytes = n
	}
	return st, nil
}
