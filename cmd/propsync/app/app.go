// Package app provides the application context and dependency management
// for the propsync CLI. Configuration, logging and the lazily opened vault,
// snapshot database and client live here so commands only describe what
// they do.
package app

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/propsync"
	"github.com/agentstation/propsync/internal/snapshots"
	"github.com/agentstation/propsync/internal/vault"
	"github.com/agentstation/propsync/pkg/errors"
)

// App represents the propsync application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	stdout io.Writer
	stderr io.Writer

	// Lazily opened, shared by every command of one execution
	mu     sync.Mutex
	vault  *vault.Vault
	client propsync.Client
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns who built the binary.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Vault returns the configured vault, opening it on first use.
func (a *App) Vault() (*vault.Vault, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openVault()
}

func (a *App) openVault() (*vault.Vault, error) {
	if a.vault != nil {
		return a.vault, nil
	}
	v, err := vault.Open(a.config.Vault)
	if err != nil {
		return nil, errors.WrapResource("open", "vault", a.config.Vault, err)
	}
	a.vault = v
	return v, nil
}

// Client returns the propsync client, creating it on first use. Extra
// options apply only to that first creation.
func (a *App) Client(opts ...propsync.Option) (propsync.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	v, err := a.openVault()
	if err != nil {
		return nil, err
	}

	store, err := snapshots.OpenSQLite(a.config.DatabasePath())
	if err != nil {
		return nil, err
	}

	base := []propsync.Option{
		propsync.WithDocuments(v),
		propsync.WithSnapshotStore(store),
		propsync.WithSettings(a.config.Settings),
		propsync.WithLogger(a.logger),
	}
	client, err := propsync.New(append(base, opts...)...)
	if err != nil {
		_ = store.Close()
		return nil, errors.WrapResource("create", "client", "", err)
	}

	a.logger.Debug().
		Str("vault", v.Root()).
		Str("database", a.config.DatabasePath()).
		Msg("Client ready")
	a.client = client
	return client, nil
}

// Shutdown drains scheduled work and closes the snapshot database.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithOutput redirects command output, mostly for tests.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) error {
		a.stdout = stdout
		a.stderr = stderr
		return nil
	}
}
