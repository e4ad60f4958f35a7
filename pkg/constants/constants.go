// Package constants provides shared constants used throughout the propsync codebase.
// This includes defaults for the reconciliation settings, timeouts, limits and
// file permissions that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultDebounce is the quiet period before a triggered document is reconciled
	DefaultDebounce = 500 * time.Millisecond

	// CycleTimeout bounds a single reconciliation cycle started by the watcher
	CycleTimeout = 30 * time.Second

	// ShutdownTimeout is how long the CLI waits for in-flight cycles on exit
	ShutdownTimeout = 5 * time.Second

	// RenameWindow is how long the watcher waits for the create that completes a rename
	RenameWindow = 250 * time.Millisecond

	// SQLiteBusyTimeout is the busy timeout applied to the snapshot database, in milliseconds
	SQLiteBusyTimeout = 5000
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureDirPermissions is used for the snapshot database directory (rwx------)
	SecureDirPermissions = 0700
)

// Limit constants define various limits and capacities
const (
	// MaxNormalizeCacheEntries caps the memo cache of a single normalizer
	MaxNormalizeCacheEntries = 4096

	// MaxListDepth bounds recursion when coercing nested lists
	MaxListDepth = 16

	// MaxDocumentSize is the largest markdown file the vault adapter will read, in bytes
	MaxDocumentSize = 8 << 20
)

// Reconciliation defaults
const (
	// DefaultListSuffix marks a field as a list field by name
	DefaultListSuffix = "_list"

	// DefaultUnflattenSeparator splits keys into nested paths when unflatten is enabled
	DefaultUnflattenSeparator = "__"

	// DefaultExcludeKey is the header key that opts a document out of synchronization
	DefaultExcludeKey = "dataview_properties_ignore"

	// DefaultErrorSentinel marks a failed embedded query evaluation
	DefaultErrorSentinel = "Dataview (for inline query"

	// DefaultLinkScheme is the host application URI scheme stripped from list links
	DefaultLinkScheme = "obsidian://"

	// DefaultDocumentExtension is the extension of documents inside a vault
	DefaultDocumentExtension = ".md"

	// DefaultQueryPrefix introduces an inline query expression
	DefaultQueryPrefix = "="

	// DefaultJSQueryPrefix introduces an inline script expression
	DefaultJSQueryPrefix = "$="
)

// Application constants
const (
	// AppName is the name of the CLI binary and the config file stem
	AppName = "propsync"

	// EnvPrefix is the prefix of environment variables read by the CLI
	EnvPrefix = "PROPSYNC"

	// SnapshotDBName is the default file name of the snapshot database
	SnapshotDBName = "snapshots.db"

	// StateDirName is created under the vault root to hold the snapshot database
	StateDirName = ".propsync"
)
