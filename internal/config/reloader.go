package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/elevaite/api/internal/authz"
)

// SchemaChangeCallback is called with a freshly compiled schema set whenever
// the files in the schema directory change and compile cleanly.
type SchemaChangeCallback func(*authz.SchemaSet)

// SchemaErrorCallback is called when a reload fails to compile.
type SchemaErrorCallback func(error)

// SchemaReloader watches a schema directory and recompiles the scope schemas
// on change. A compile failure keeps the previous set in place.
type SchemaReloader struct {
	dir          string
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	callbacks    []SchemaChangeCallback
	errCallbacks []SchemaErrorCallback
}

// NewSchemaReloader creates a reloader over a schema directory.
func NewSchemaReloader(dir string) (*SchemaReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &SchemaReloader{
		dir:     dir,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnSchemaChange registers a callback for successful recompiles.
func (r *SchemaReloader) OnSchemaChange(callback SchemaChangeCallback) {
	r.callbacks = append(r.callbacks, callback)
}

// OnReloadFailure registers a callback for recompiles that fail.
func (r *SchemaReloader) OnReloadFailure(callback SchemaErrorCallback) {
	r.errCallbacks = append(r.errCallbacks, callback)
}

// LoadSchemas compiles the scope documents currently in the directory.
func (r *SchemaReloader) LoadSchemas() (*authz.SchemaSet, error) {
	account, err := os.ReadFile(filepath.Join(r.dir, "account_scope.json"))
	if err != nil {
		return nil, fmt.Errorf("reading account scope: %w", err)
	}
	project, err := os.ReadFile(filepath.Join(r.dir, "project_scope.json"))
	if err != nil {
		return nil, fmt.Errorf("reading project scope: %w", err)
	}
	apikey, err := os.ReadFile(filepath.Join(r.dir, "apikey_scope.json"))
	if err != nil {
		return nil, fmt.Errorf("reading apikey scope: %w", err)
	}
	return authz.CompileSet(account, project, apikey)
}

// Start begins watching for schema changes.
func (r *SchemaReloader) Start(ctx context.Context) error {
	if err := r.watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch schema directory: %w", err)
	}

	go r.watchLoop(ctx)
	slog.Info("Schema reloader started", "schema_dir", r.dir)
	return nil
}

// Stop stops watching for schema changes.
func (r *SchemaReloader) Stop() error {
	close(r.stopCh)
	return r.watcher.Close()
}

// watchLoop processes file system events.
func (r *SchemaReloader) watchLoop(ctx context.Context) {
	// Debounce rapid file changes; deploys rewrite all three files.
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer
	needsReload := false

	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				slog.Debug("Schema file changed", "file", event.Name, "op", event.Op)
				needsReload = true
				debounceTimer.Reset(500 * time.Millisecond)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)

		case <-debounceTimer.C:
			if needsReload {
				r.reload()
				needsReload = false
			}
		}
	}
}

// reload recompiles the schemas and notifies callbacks on the outcome.
func (r *SchemaReloader) reload() {
	slog.Info("Reloading permission schemas")

	set, err := r.LoadSchemas()
	if err != nil {
		authz.RecordSchemaReload("failed")
		slog.Error("Failed to reload schemas, keeping previous set", "error", err)
		for _, callback := range r.errCallbacks {
			callback(err)
		}
		return
	}

	for _, callback := range r.callbacks {
		callback(set)
	}
	authz.RecordSchemaReload("success")
	slog.Info("Permission schemas reloaded successfully")
}
