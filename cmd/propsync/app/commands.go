package app

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/propsync"
	"github.com/agentstation/propsync/internal/cmd/output"
	"github.com/agentstation/propsync/internal/vault"
	"github.com/agentstation/propsync/internal/watcher"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/settings"
)

// report is the machine-readable form of a batch.
type report struct {
	Results []*propsync.Result `json:"results" yaml:"results"`
	Totals  propsync.Totals    `json:"totals" yaml:"totals"`
}

// NewSyncCommand creates the sync command.
func (a *App) NewSyncCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "sync [paths...]",
		GroupID: "core",
		Short:   "Reconcile documents once",
		Long: `Sync reconciles the given documents, or every document in the vault
when no path is given. Directories expand to the documents inside them.`,
		Example: `  propsync sync
  propsync sync Projects/ notes/today.md
  propsync sync --dry-run -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []propsync.Option
			if dryRun {
				opts = append(opts, propsync.WithDryRun(true))
			}
			client, err := a.Client(opts...)
			if err != nil {
				return err
			}
			v, err := a.Vault()
			if err != nil {
				return err
			}
			docs, err := resolveDocuments(cmd.Context(), v, args)
			if err != nil {
				return err
			}

			results, runErr := client.ReconcileAll(cmd.Context(), docs)
			if err := a.printResults(output.Results(results), results); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would change without writing")
	return cmd
}

// NewCheckCommand creates the check command.
func (a *App) NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "check [paths...]",
		GroupID: "core",
		Short:   "List the changes sync would make",
		Long: `Check computes the field changes for the given documents without
touching headers or snapshots.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			v, err := a.Vault()
			if err != nil {
				return err
			}
			docs, err := resolveDocuments(cmd.Context(), v, args)
			if err != nil {
				return err
			}

			results := make([]*propsync.Result, 0, len(docs))
			var errs []error
			for _, doc := range docs {
				result, err := client.Check(cmd.Context(), doc)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				results = append(results, result)
			}
			if err := a.printResults(output.Changes(results), results); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
}

// NewWatchCommand creates the watch command.
func (a *App) NewWatchCommand() *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: "core",
		Short:   "Reconcile documents as they change",
		Long: `Watch follows the vault for edits and reconciles each changed document
after the debounce delay. Deleted documents have their snapshot dropped.

When settings.interval is set, every document is also resynced on that
interval. Stop with Ctrl+C; pending work is flushed before exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := a.Client()
			if err != nil {
				return err
			}
			v, err := a.Vault()
			if err != nil {
				return err
			}

			if initial {
				docs, err := v.List(ctx)
				if err != nil {
					return err
				}
				for _, doc := range docs {
					client.Trigger(doc)
				}
				a.logger.Info().Int("documents", len(docs)).Msg("Initial sync scheduled")
			}

			if client.Settings().Interval > 0 {
				if err := client.AutoResyncOn(v.List); err != nil {
					return err
				}
				defer func() { _ = client.AutoResyncOff() }()
			}

			w := watcher.New(client, v, watcher.WithLogger(a.logger))
			a.logger.Info().Str("vault", v.Root()).Msg("Watching for changes")
			if err := w.Run(ctx); err != nil {
				return err
			}

			stats := w.Stats()
			a.logger.Info().
				Int64("events", stats.Events).
				Int64("triggered", stats.Triggered).
				Int64("renamed", stats.Renamed).
				Int64("forgotten", stats.Forgotten).
				Msg("Watch stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", true, "sync every document on start")
	return cmd
}

// NewForgetCommand creates the forget command.
func (a *App) NewForgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "forget <paths...>",
		GroupID: "management",
		Short:   "Drop the remembered fields of documents",
		Long: `Forget deletes the snapshot of each document. Fields propsync added
before stay in the header but are no longer removed when their inline
source disappears.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			v, err := a.Vault()
			if err != nil {
				return err
			}
			docs, err := resolveDocuments(cmd.Context(), v, args)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if err := client.Forget(cmd.Context(), doc); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s: forgotten\n", doc)
			}
			return nil
		},
	}
}

// NewConfigCommand creates the config command and its subcommands.
func (a *App) NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		GroupID: "management",
		Short:   "Inspect the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			format := output.FormatYAML
			if a.config.Output != "" {
				f, err := output.ParseFormat(a.config.Output)
				if err != nil {
					return err
				}
				format = f
			}
			return output.NewFormatter(format).Format(a.stdout, a.config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check settings and compile every pattern",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := a.config.Settings.Validate(); err != nil {
				return err
			}
			if _, err := settings.Compile(a.config.Settings, a.logger); err != nil {
				return err
			}
			source := a.config.ConfigFile
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintf(a.stdout, "Settings are valid (%s)\n", source)
			return nil
		},
	})

	return cmd
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "propsync version %s\n", a.version)
			fmt.Fprintf(a.stdout, "commit: %s\n", a.commit)
			fmt.Fprintf(a.stdout, "built: %s\n", a.date)
			fmt.Fprintf(a.stdout, "built by: %s\n", a.builtBy)
			fmt.Fprintf(a.stdout, "go version: %s\n", runtime.Version())
			fmt.Fprintf(a.stdout, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// printResults renders table as a table, or the full results as JSON/YAML.
func (a *App) printResults(table output.Tabular, results []*propsync.Result) error {
	format, err := a.format()
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON, output.FormatYAML:
		return output.NewFormatter(format).Format(a.stdout, report{
			Results: compact(results),
			Totals:  propsync.Total(results),
		})
	}

	if len(table.TableData(false).Rows) > 0 {
		if err := output.NewFormatter(format).Format(a.stdout, table); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(a.stdout, propsync.Total(results).String())
	return err
}

func (a *App) format() (output.Format, error) {
	if a.config.Output != "" {
		return output.ParseFormat(a.config.Output)
	}
	return output.DetectFormat(""), nil
}

func compact(results []*propsync.Result) []*propsync.Result {
	out := make([]*propsync.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// resolveDocuments turns command arguments into document identities. No
// arguments means the whole vault; a directory expands to its documents.
func resolveDocuments(ctx context.Context, v *vault.Vault, args []string) ([]string, error) {
	if len(args) == 0 {
		return v.List(ctx)
	}

	var all []string
	var docs []string
	seen := make(map[string]bool)
	for _, arg := range args {
		info, statErr := os.Stat(arg)
		if statErr == nil && info.IsDir() {
			if all == nil {
				list, err := v.List(ctx)
				if err != nil {
					return nil, err
				}
				all = list
			}
			prefix, err := v.ID(arg)
			if err != nil && !isRoot(v, arg) {
				return nil, err
			}
			for _, doc := range all {
				if (prefix == "" || strings.HasPrefix(doc, prefix+"/")) && !seen[doc] {
					seen[doc] = true
					docs = append(docs, doc)
				}
			}
			continue
		}

		doc, err := v.ID(arg)
		if err != nil {
			return nil, err
		}
		if !v.IsDocument(doc) {
			return nil, errors.NewValidationError("path", arg, "not a document")
		}
		if !seen[doc] {
			seen[doc] = true
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// isRoot reports whether dir is the vault root itself.
func isRoot(v *vault.Vault, dir string) bool {
	a, err := os.Stat(dir)
	if err != nil {
		return false
	}
	b, err := os.Stat(v.Root())
	if err != nil {
		return false
	}
	return os.SameFile(a, b)
}
