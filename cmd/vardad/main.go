// Command vardad is the engine's server process: it loads Config from the
// environment, wires the store/blob/broker/task singletons together, and
// serves the HTTP surface, the same envconfig-then-wire-singletons-then-
// e.Start shape gohan's api/main.go follows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"varda/internal/annotate"
	"varda/internal/binning"
	"varda/internal/blob"
	"varda/internal/broker"
	"varda/internal/config"
	"varda/internal/frequency"
	"varda/internal/httpapi"
	"varda/internal/ingest"
	"varda/internal/logging"
	"varda/internal/reference"
	"varda/internal/store/sqlstore"
	"varda/internal/task"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vardad:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting vardad",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("data_dir", cfg.Store.DataDir),
		zap.String("url_prefix", cfg.HTTP.URLPrefix),
		zap.String("port", cfg.HTTP.Port))

	db, err := sqlstore.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	b, err := blob.NewFSStore(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	var oracle reference.Oracle
	if cfg.Reference.Genome != "" {
		fasta, err := reference.Open(cfg.Reference.Genome)
		if err != nil {
			return fmt.Errorf("open reference genome: %w", err)
		}
		defer fasta.Close()
		oracle = fasta
	}

	imp := ingest.NewImporter(db, b, ingest.Options{
		MismatchPolicy: cfg.ReferenceMismatchPolicy(),
		Oracle:         oracle,
	})

	ann := annotate.NewAnnotator(db, b, annotate.Options{
		MismatchPolicy: cfg.ReferenceMismatchPolicy(),
		Oracle:         oracle,
		Scheme:         binning.Default,
	})

	queue := broker.NewChanQueue(256)

	mgr := task.NewManager(db, imp, ann, queue, task.Options{})
	mgr.Logger = logger

	freq := frequency.New(db)

	e := httpapi.New(db, b, mgr, freq, cfg)
	e.Logger.SetOutput(os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := mgr.Run(ctx); err != nil {
			logger.Error("task manager stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(":" + cfg.HTTP.Port) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return e.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
