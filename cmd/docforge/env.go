package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"

	docforge "github.com/goliatone/go-docforge"
	"github.com/goliatone/go-docforge/internal/config"
	"github.com/goliatone/go-docforge/pkg/auth"
	"github.com/goliatone/go-docforge/pkg/logging"
	"github.com/goliatone/go-docforge/pkg/saferender"
	"github.com/goliatone/go-docforge/pkg/store"
	"github.com/goliatone/go-docforge/pkg/store/postgres"
)

const meterName = "github.com/goliatone/go-docforge"

// cmdFlags holds the flags specific to one command.
type cmdFlags struct {
	sample    string
	data      string
	file      string
	published bool
	force     bool
	dryRun    bool
}

func (f *cmdFlags) register(command string, fs *flag.FlagSet) {
	switch command {
	case "lint":
		fs.StringVar(&f.sample, "sample", "", "JSON or YAML file with sample data treated as known variables")
	case "batch-lint":
		fs.BoolVar(&f.published, "published", false, "lint only published templates")
	case "verify":
		fs.BoolVar(&f.force, "force", false, "publish despite content quality blockers")
		fs.BoolVar(&f.dryRun, "dry-run", false, "report the outcome without persisting it")
	case "edit":
		fs.StringVar(&f.file, "file", "", "content file: .yaml/.json for structured bodies, anything else is plain text")
	case "render":
		fs.StringVar(&f.data, "data", "", "JSON or YAML file with the data to substitute")
	}
}

// env is what a command runs against.
type env struct {
	cfg       config.Config
	flags     cmdFlags
	logger    logging.Logger
	store     store.Store
	svc       *docforge.Service
	fallbacks *saferender.AtomicCounter
	stdout    io.Writer
	stderr    io.Writer
	closers   []func() error
}

func execute(ctx context.Context, cmd command, args []string, stdout, stderr io.Writer) error {
	var flags cmdFlags
	cfg, rest, err := config.Load(cmd.name, args, func(fs *flag.FlagSet) {
		fs.SetOutput(stderr)
		flags.register(cmd.name, fs)
	})
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	e, err := newEnv(ctx, cmd.name, cfg, flags, stdout, stderr)
	if err != nil {
		return err
	}
	defer e.close()

	return cmd.run(ctx, e, rest)
}

func newEnv(ctx context.Context, command string, cfg config.Config, flags cmdFlags, stdout, stderr io.Writer) (*env, error) {
	logger, err := logging.New(stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg:       cfg,
		flags:     flags,
		logger:    logger.With("command", command),
		fallbacks: &saferender.AtomicCounter{},
		stdout:    stdout,
		stderr:    stderr,
	}

	if err := e.openStore(ctx); err != nil {
		return nil, err
	}

	options := []docforge.Option{
		docforge.WithStore(e.store),
		docforge.WithLogger(e.logger),
		docforge.WithProduction(cfg.Production),
		docforge.WithMaxContentBytes(cfg.MaxContentBytes),
		docforge.WithBatchLimits(cfg.BatchConcurrency, cfg.BatchRatePerSecond, cfg.BatchConcurrency),
		docforge.WithAuthorizer(e.authorizer(ctx, command)),
	}

	counters := saferender.MultiCounter{e.fallbacks}
	if otelCounter, err := saferender.NewOTelCounter(otel.Meter(meterName)); err != nil {
		e.logger.Warn(ctx, "fallback metric unavailable", "error", err)
	} else {
		counters = append(counters, otelCounter)
	}
	options = append(options, docforge.WithFallbackCounter(counters))

	if cfg.SeedDir != "" {
		seeded, err := docforge.Seed(ctx, os.DirFS(cfg.SeedDir), e.store, time.Now())
		if err != nil {
			e.close()
			return nil, fmt.Errorf("seed %s: %w", cfg.SeedDir, err)
		}
		e.logger.Debug(ctx, "seed loaded", "dir", cfg.SeedDir, "templates", len(seeded.Templates), "flows", len(seeded.Flows.IDs()))
		options = append(options, docforge.WithFlows(seeded.Flows))
	}

	e.svc = docforge.New(options...)
	return e, nil
}

func (e *env) openStore(ctx context.Context) error {
	if e.cfg.DatabaseDSN == "" {
		if e.cfg.SeedDir == "" {
			e.logger.Warn(ctx, "no database and no seed directory; the store is empty")
		}
		e.store = store.NewMemory()
		return nil
	}

	pg, err := postgres.Open(ctx, e.cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return err
	}
	e.store = pg
	e.closers = append(e.closers, pg.Close)
	return nil
}

// authorizer trusts the local operator for CLI commands. The server checks
// bearer tokens and rejects every privileged call when no secret is set.
func (e *env) authorizer(ctx context.Context, command string) auth.Authorizer {
	if command != "serve" {
		return auth.Static(true)
	}
	if e.cfg.JWTSecret == "" {
		e.logger.Warn(ctx, "no JWT secret configured; privileged endpoints are disabled")
		return auth.Static(false)
	}
	return auth.NewJWT([]byte(e.cfg.JWTSecret), e.cfg.PrivilegedRoles...)
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	e.closers = nil
}
