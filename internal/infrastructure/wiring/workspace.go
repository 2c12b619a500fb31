package wiring

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/config"
	"github.com/felixgeelhaar/kalk/pkg/application"
	"github.com/felixgeelhaar/kalk/pkg/domain"
	"github.com/felixgeelhaar/kalk/pkg/storage"
	"github.com/felixgeelhaar/kalk/pkg/storage/sqlite"
)

// Workspace bundles core infrastructure dependencies.
type Workspace struct {
	Root   string
	Config *config.Config
	// Files always points at .kalk; it holds the config and the local sources
	// even when records are kept in SQLite.
	Files *storage.FilesystemRepository
	Repo  domain.WorkspaceRepository
	Local *storage.LocalSources
	Audit *application.AuditService

	db *sqlite.Store
}

// OpenWorkspace loads kalk.yaml and opens the configured record store.
func OpenWorkspace(root string) (*Workspace, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	files := storage.NewFilesystemRepository(root)
	ws := &Workspace{
		Root:   root,
		Config: cfg,
		Files:  files,
		Repo:   files,
		Local:  storage.NewLocalSources(files),
	}

	if cfg.Storage == config.StorageSQLite {
		path := cfg.SQLitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		if !db.IsInitialized() {
			if err := db.Initialize(); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		ws.db = db
		ws.Repo = db
	}

	ws.Audit = application.NewAuditService(ws.Repo)
	return ws, nil
}

// Initialize creates .kalk with default config and parameters. Existing files
// are left alone.
func (w *Workspace) Initialize() error {
	if err := w.Files.Initialize(); err != nil {
		return err
	}
	if err := w.Repo.Initialize(); err != nil {
		return err
	}
	if path, err := w.Files.ResolvePath(storage.ConfigFile); err == nil && !exists(path) {
		if err := config.Save(w.Root, w.Config); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}
	return nil
}

func (w *Workspace) IsInitialized() bool {
	return w.Files.IsInitialized()
}

func (w *Workspace) Close() error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
