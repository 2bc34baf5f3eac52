package alacard

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	port           int
	databaseURL    string
	catalogPath    string
	logger         *slog.Logger
	version        string
	store          NotebookStore
	metadataSource MetadataSource
}

// WithPort overrides the TCP port from config (ALACARD_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the store location from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithCatalogPath loads card tables from a YAML file instead of the
// embedded catalog (ALACARD_CATALOG_PATH env var).
func WithCatalogPath(path string) Option {
	return func(o *resolvedOptions) { o.catalogPath = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithNotebookStore replaces the store selected by DATABASE_URL. The App
// still puts its read cache in front and closes the store on Shutdown.
func WithNotebookStore(s NotebookStore) Option {
	return func(o *resolvedOptions) { o.store = s }
}

// WithMetadataSource replaces the Hugging Face Hub client.
func WithMetadataSource(s MetadataSource) Option {
	return func(o *resolvedOptions) { o.metadataSource = s }
}
