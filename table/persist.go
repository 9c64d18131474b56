package table

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/meteorhacks/dialog/index"
	"github.com/meteorhacks/dialog/schema"
)

// indexManifestEntry records one attached index's column and bucket
// size, so loadIndexSnapshots can rebuild the Index Set on reopen
// without guessing a bucket size back out of a bare snapshot file.
type indexManifestEntry struct {
	Field      string  `json:"field"`
	BucketSize float64 `json:"bucketSize"`
}

func manifestPath(dir string) string {
	return filepath.Join(dir, "indexes.json")
}

func snapshotPath(dir, field string) string {
	return filepath.Join(dir, "index_"+field+".snap")
}

// saveIndexSnapshots persists every attached index's postings via
// index.SaveSnapshot, plus a manifest of (field, bucket size) pairs
// loadIndexSnapshots needs to reconstruct them. A no-op when dir is
// empty, i.e. an in-memory table with nothing durable to wire this to.
func (t *Table) saveIndexSnapshots(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	t.idxMu.RLock()
	defer t.idxMu.RUnlock()

	manifest := make([]indexManifestEntry, 0, len(t.indexes))
	for field, idx := range t.indexes {
		if err := saveOneSnapshot(snapshotPath(dir, field), idx); err != nil {
			return err
		}
		manifest = append(manifest, indexManifestEntry{Field: field, BucketSize: idx.BucketSize})
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(manifestPath(dir), data, 0o644)
}

func saveOneSnapshot(path string, idx *index.Index) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	err = idx.SaveSnapshot(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// loadIndexSnapshots rebuilds the Index Set a prior saveIndexSnapshots
// call wrote, matching manifest fields back against sch's columns. A
// missing manifest (first-ever open of a durable table, or an
// in-memory one) is not an error — the table just starts with no
// indexes, same as before this wiring existed.
func loadIndexSnapshots(dir string, sch *schema.Schema) (map[string]*index.Index, error) {
	indexes := make(map[string]*index.Index)
	if dir == "" {
		return indexes, nil
	}

	data, err := os.ReadFile(manifestPath(dir))
	if os.IsNotExist(err) {
		return indexes, nil
	}
	if err != nil {
		return nil, err
	}

	var manifest []indexManifestEntry
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}

	for _, entry := range manifest {
		col, ok := sch.ColumnByName(entry.Field)
		if !ok {
			continue // column no longer in the schema since the snapshot was taken
		}

		idx := index.New(col, entry.BucketSize)
		if err := loadOneSnapshot(snapshotPath(dir, entry.Field), idx); err != nil {
			return nil, err
		}
		indexes[entry.Field] = idx
	}

	return indexes, nil
}

func loadOneSnapshot(path string, idx *index.Index) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	err = idx.LoadSnapshot(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
