package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gitmem/internal/config"
	"github.com/fyrsmithlabs/gitmem/internal/embeddings"
	"github.com/fyrsmithlabs/gitmem/internal/ledger"
	"github.com/fyrsmithlabs/gitmem/internal/logging"
	"github.com/fyrsmithlabs/gitmem/internal/memory"
	"github.com/fyrsmithlabs/gitmem/internal/secrets"
	"github.com/fyrsmithlabs/gitmem/internal/telemetry"
	"github.com/fyrsmithlabs/gitmem/internal/vectorstore"
	"github.com/fyrsmithlabs/gitmem/pkg/git"
)

// app is a fully wired memory engine plus the ambient services it needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	tel    *telemetry.Telemetry
	svc    *memory.Service
}

// loadConfig finds the workspace root for opts.workdir and loads its
// configuration. Outside a git repository the workdir itself is the root.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	dir, err := filepath.Abs(opts.workdir)
	if err != nil {
		return nil, fmt.Errorf("resolving workdir: %w", err)
	}
	root, err := git.FindRoot(dir)
	if err != nil {
		root = dir
	}

	var cfg *config.Config
	if opts.configPath != "" {
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
		cfg.ResolvePaths(root)
	} else if cfg, err = config.LoadWorkspace(root); err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, nil
}

// newRedactor builds the redactor from the built-in rules, the configured
// allow list and the project's gitleaks allow-list file.
func newRedactor(cfg *config.Config) (secrets.Redactor, error) {
	fromFile, err := secrets.LoadAllowList(cfg.Secrets.AllowListFile)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	r, err := secrets.New(&secrets.Config{
		Enabled:   cfg.Secrets.Enabled,
		Rules:     secrets.DefaultRules(),
		AllowList: append(append([]string(nil), cfg.Secrets.AllowList...), fromFile...),
		Gitleaks:  cfg.Secrets.Gitleaks,
	})
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	return r, nil
}

// openApp wires the engine. The caller must Close the result.
func openApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, tel: tel}
	if a.svc, err = a.newService(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Debug("gitmem ready",
		zap.String("root", cfg.Root),
		zap.String("backend", cfg.Backend),
		zap.String("provider", cfg.Embeddings.Provider),
		zap.Strings("namespaces", cfg.Namespaces),
	)
	return a, nil
}

func (a *app) newService(ctx context.Context) (*memory.Service, error) {
	cfg := a.cfg

	redactor, err := newRedactor(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		CacheDir:  cfg.Embeddings.CacheDir,
		Device:    cfg.Embeddings.Device,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		Timeout:   cfg.Embeddings.Timeout.Duration(),
		RateLimit: cfg.Embeddings.RateLimit,
		Dimension: cfg.Embeddings.Dimension,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	index, err := vectorstore.New(ctx, vectorstore.Config{
		Backend:   cfg.Backend,
		Dimension: provider.Dimension(),
		SQLite: vectorstore.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			VectorPath:   cfg.SQLite.VectorPath,
			VectorSearch: cfg.SQLite.VectorSearch,
			Compress:     cfg.SQLite.Compress,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			UseTLS:     cfg.Qdrant.UseTLS,
		},
	}, a.logger)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("index: %w", err)
	}

	svc, err := memory.NewService(
		memory.Config{Namespaces: cfg.Namespaces},
		memory.Deps{
			Redactor: redactor,
			Provider: provider,
			Index:    index,
			Ledger:   ledger.NewGitNotes(cfg.Ledger.RepoPath, cfg.Ledger.Namespace, a.logger),
		},
		a.logger,
	)
	if err != nil {
		_ = errors.Join(provider.Close(), index.Close())
		return nil, err
	}
	return svc, nil
}

// Close stops the engine, flushes telemetry and syncs the logger.
func (a *app) Close() error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
	}
	errs = append(errs, a.tel.Shutdown(context.Background()))
	_ = logging.Sync(a.logger)
	return errors.Join(errs...)
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(ctx context.Context, opts *globalOptions, fn func(*app) error) (err error) {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
