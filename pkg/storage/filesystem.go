package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/kalk/pkg/domain"
)

const KalkDir = ".kalk"
const ConfigFile = "kalk.yaml"
const ParametersFile = "parameters.yaml"
const EventsFile = "events.jsonl"
const PreCalcDir = "precalc"
const PostCalcDir = "postcalc"
const SourcesDir = "sources"
const DeadLetterFile = "webhooks.deadletter.jsonl"

// Compile-time check that FilesystemRepository implements WorkspaceRepository
var _ domain.WorkspaceRepository = (*FilesystemRepository)(nil)

// FilesystemRepository stores parameters, derived records and the audit log
// under <root>/.kalk. Every record is replaced through a temp file and rename,
// so a reader never sees a partial write.
type FilesystemRepository struct {
	root        string
	retryConfig retry.Config
}

func NewFilesystemRepository(root string) *FilesystemRepository {
	return &FilesystemRepository{
		root: root,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Root returns the workspace root directory.
func (r *FilesystemRepository) Root() string {
	return r.root
}

// Dir returns the .kalk directory.
func (r *FilesystemRepository) Dir() string {
	return filepath.Join(r.root, KalkDir)
}

// ResolvePath joins elems below the .kalk directory and rejects any result
// that escapes it.
func (r *FilesystemRepository) ResolvePath(elems ...string) (string, error) {
	if len(elems) == 0 {
		return "", fmt.Errorf("filename cannot be empty")
	}
	for _, e := range elems {
		if e == "" {
			return "", fmt.Errorf("filename cannot be empty")
		}
	}

	baseDir := r.Dir()
	cleanPath := filepath.Clean(filepath.Join(append([]string{baseDir}, elems...)...))

	rel, err := filepath.Rel(baseDir, cleanPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid file path: %s", filepath.Join(elems...))
	}
	return cleanPath, nil
}

func (r *FilesystemRepository) Initialize() error {
	for _, dir := range []string{"", PreCalcDir, PostCalcDir, SourcesDir} {
		// G301: Use 0700 for directories
		if err := os.MkdirAll(filepath.Join(r.Dir(), dir), 0700); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", filepath.Join(KalkDir, dir), err)
		}
	}
	return nil
}

func (r *FilesystemRepository) IsInitialized() bool {
	_, err := os.Stat(r.Dir())
	return err == nil
}

// readFile reads a workspace file with retries. A missing file is reported as
// (nil, nil) without retrying.
func (r *FilesystemRepository) readFile(ctx context.Context, elems ...string) ([]byte, error) {
	path, err := r.ResolvePath(elems...)
	if err != nil {
		return nil, err
	}

	retryer := retry.New[[]byte](r.retryConfig)
	data, err := retryer.Do(ctx, func(ctx context.Context) ([]byte, error) {
		// #nosec G304 -- Path is resolved and validated via ResolvePath
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Join(elems...), err)
	}
	return data, nil
}

// writeFile atomically replaces a workspace file.
func (r *FilesystemRepository) writeFile(data []byte, elems ...string) error {
	path, err := r.ResolvePath(elems...)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	// G306: Use 0600 for files
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	committed = true
	return nil
}
