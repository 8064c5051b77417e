package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"nimp/internal/logging"
)

// SchemaVersion is written into every snapshot.
const SchemaVersion = "1.1.0"

// schemaConstraint accepts snapshots this build can read.
const schemaConstraint = "^1.0"

// ErrSchemaVersion is returned for snapshots written by an incompatible build.
var ErrSchemaVersion = errors.New("unsupported knowledge schema version")

// FileStore persists the knowledge base as a JSON snapshot.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot location.
func (f *FileStore) Path() string { return f.path }

// Load implements Store. A missing file yields an empty base.
func (f *FileStore) Load(ctx context.Context) (*Base, error) {
	timer := logging.StartTimer(logging.CategoryStore, "FileStore.Load")
	defer timer.Stop()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.StoreDebug("no snapshot at %s, starting empty", f.path)
			return NewBase(), nil
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Save implements Store. The snapshot is written to a temporary file and renamed.
func (f *FileStore) Save(ctx context.Context, b *Base) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".knowledge-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if err := Encode(tmp, b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	logging.Store("saved %d classifications (v%d) to %s", b.Len(), b.Version, f.path)
	return nil
}

// Encode writes b as an indented JSON snapshot.
func Encode(w io.Writer, b *Base) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toSnapshot(b)); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Decode reads a JSON snapshot and checks its schema version.
func Decode(r io.Reader) (*Base, error) {
	var s snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := checkSchema(s.SchemaVersion); err != nil {
		return nil, err
	}
	return fromSnapshot(s), nil
}

func checkSchema(v string) error {
	if v == "" {
		// snapshots from before versioning
		return nil
	}
	c, err := semver.NewConstraint(schemaConstraint)
	if err != nil {
		return fmt.Errorf("schema constraint: %w", err)
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrSchemaVersion, v, err)
	}
	if !c.Check(ver) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrSchemaVersion, v, schemaConstraint)
	}
	return nil
}
