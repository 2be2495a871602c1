package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jgivc/pagesync/internal/adapter/fsadapter"
	"github.com/jgivc/pagesync/internal/adapter/mdrender"
	"github.com/jgivc/pagesync/internal/adapter/srcadapter"
	"github.com/jgivc/pagesync/internal/config"
	"github.com/jgivc/pagesync/internal/repository/asset"
	"github.com/jgivc/pagesync/internal/retry"
	"github.com/jgivc/pagesync/internal/service/reconcile"
	"github.com/jgivc/pagesync/internal/service/source"
	syncsrv "github.com/jgivc/pagesync/internal/service/sync"
	"github.com/spf13/afero"
)

type App struct {
	cfgPath string
	dryRun  bool
}

func New(cfgPath string, dryRun bool) *App {
	return &App{
		cfgPath: cfgPath,
		dryRun:  dryRun,
	}
}

// Run wires everything up and performs one synchronization pass.
// Configuration problems abort before any I/O; per-record failures inside
// the run are logged and do not fail the process.
func (a *App) Run(ctx context.Context) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("cannot start: %w", err)
	}

	log := newLogger(cfg.LogLevel)
	fs := afero.NewOsFs()

	client := srcadapter.NewClient(&srcadapter.Config{
		BaseURL:  cfg.Source.BaseURL,
		Token:    cfg.Source.Token,
		Timeout:  time.Duration(cfg.Source.Timeout),
		PageSize: cfg.Source.PageSize,
	}, log)

	policy := retryPolicy(&cfg.Retry)
	namingCfg := cfg.NamingResolverConfig()

	srcBuilder := source.NewBuilder(client, &source.Config{
		Collections:      mounts(cfg.Collections),
		Records:          recordMounts(cfg.Records),
		ClassifyProperty: cfg.Classify.Property,
		PublishedValues:  cfg.Classify.PublishedValues,
		Workers:          cfg.Workers,
	}, policy, log)

	out := fsadapter.NewFSAdapterWithFS(fs, &fsadapter.Config{
		OutputRoot:    cfg.OutputDir,
		Extension:     cfg.Naming.Extension,
		IndexFileName: cfg.Naming.IndexFileName,
		SkipDirs:      []string{".pagesync"},
	}, log)

	assets, err := asset.NewRepository(fs, &asset.Config{Dir: cfg.AssetDir()}, log)
	if err != nil {
		return fmt.Errorf("cannot start: %w", err)
	}

	svc := syncsrv.NewSyncService(
		srcBuilder,
		out,
		reconcile.New(namingCfg, log),
		mdrender.New(),
		assets,
		client,
		namingCfg,
		policy,
		log,
	)

	stats, err := svc.Run(ctx, a.dryRun)
	if err != nil {
		return err
	}

	fmt.Printf("created: %d, updated: %d, unchanged: %d, deleted: %d, failed: %d\n",
		stats.Created, stats.Updated, stats.Unchanged, stats.Deleted, stats.Failed)

	return nil
}

func newLogger(level string) *slog.Logger {
	lo := &slog.HandlerOptions{}
	switch level {
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, lo))
}

func retryPolicy(cfg *config.RetryConfig) retry.Policy {
	p := retry.Default

	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelay > 0 {
		p.InitialDelay = time.Duration(cfg.InitialDelay)
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = time.Duration(cfg.MaxDelay)
	}
	if cfg.BackoffMultiplier > 0 {
		p.BackoffMultiplier = cfg.BackoffMultiplier
	}
	if cfg.JitterRatio > 0 {
		p.JitterRatio = cfg.JitterRatio
	}

	return p
}

func mounts(cols []config.CollectionConfig) []source.Mount {
	out := make([]source.Mount, 0, len(cols))
	for _, c := range cols {
		out = append(out, source.Mount{ID: c.ID, TargetFolder: c.TargetFolder})
	}

	return out
}

func recordMounts(recs []config.RecordMount) []source.Mount {
	out := make([]source.Mount, 0, len(recs))
	for _, r := range recs {
		out = append(out, source.Mount{ID: r.ID, TargetFolder: r.TargetFolder})
	}

	return out
}
