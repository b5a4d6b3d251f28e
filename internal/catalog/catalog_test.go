package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/cnftvend/internal/catalog"
)

func writeDescriptor(t *testing.T, dir, name string) {
	t.Helper()
	content := []byte(`{"` + name + `":{"name":"` + name + `","image":"ipfs://x"}}`)
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newCatalog(t *testing.T, names ...string) *catalog.Catalog {
	t.Helper()
	metaDir := t.TempDir()
	lockedDir := t.TempDir()
	for _, n := range names {
		writeDescriptor(t, metaDir, n)
	}
	return catalog.New(metaDir, lockedDir)
}

func TestAvailable(t *testing.T) {
	c := newCatalog(t, "Wild Tangz 1", "Wild Tangz 2", "Wild Tangz 3")
	n, err := c.Available()
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if n != 3 {
		t.Errorf("Available() = %d, want 3", n)
	}
}

func TestReserveLexicographicOrder(t *testing.T) {
	c := newCatalog(t, "b-item", "a-item", "c-item")
	reserved, err := c.Reserve(2, false, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(reserved) != 2 {
		t.Fatalf("Reserve returned %d descriptors, want 2", len(reserved))
	}
	if reserved[0].AssetName != "a-item" || reserved[1].AssetName != "b-item" {
		t.Errorf("Reserve order = %v, want [a-item, b-item]", reserved)
	}
}

func TestReserveCapsAtAvailable(t *testing.T) {
	c := newCatalog(t, "only-item")
	reserved, err := c.Reserve(5, false, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(reserved) != 1 {
		t.Errorf("Reserve(5) over 1 item = %d descriptors, want 1", len(reserved))
	}
}

func TestReserveEmptyCatalog(t *testing.T) {
	c := newCatalog(t)
	reserved, err := c.Reserve(3, false, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(reserved) != 0 {
		t.Errorf("Reserve on empty catalog returned %d descriptors, want 0", len(reserved))
	}
}

func TestReserveRandomIsReproducibleForSameSeed(t *testing.T) {
	c := newCatalog(t, "a", "b", "c", "d", "e")
	seed := "deadbeef#0"

	first, err := c.Reserve(3, true, seed)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	second, err := c.Reserve(3, true, seed)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("reservation length differs between calls: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].AssetName != second[i].AssetName {
			t.Errorf("reservation %d differs for same seed: %s vs %s", i, first[i].AssetName, second[i].AssetName)
		}
	}
}

func TestCommitMovesFiles(t *testing.T) {
	c := newCatalog(t, "x", "y")
	reserved, err := c.Reserve(1, false, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := c.Commit(reserved); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := os.Stat(filepath.Join(c.MetadataDir, "x.json")); !os.IsNotExist(err) {
		t.Errorf("committed file still present in metadata dir")
	}
	if _, err := os.Stat(filepath.Join(c.LockedDir, "x.json")); err != nil {
		t.Errorf("committed file missing from locked dir: %v", err)
	}

	n, err := c.Available()
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if n != 1 {
		t.Errorf("Available() after commit = %d, want 1", n)
	}
}

func TestCommitMissingFileReturnsCorruptionError(t *testing.T) {
	c := newCatalog(t, "only")
	reserved, err := c.Reserve(1, false, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// Simulate a concurrent edit: remove the file out from under the
	// reservation before commit.
	if err := os.Remove(filepath.Join(c.MetadataDir, "only.json")); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	err = c.Commit(reserved)
	var corruptErr *catalog.CorruptionError
	if err == nil {
		t.Fatalf("expected CorruptionError, got nil")
	}
	if !isCorruptionError(err, &corruptErr) {
		t.Errorf("expected *catalog.CorruptionError, got %T: %v", err, err)
	}
}

func isCorruptionError(err error, target **catalog.CorruptionError) bool {
	if ce, ok := err.(*catalog.CorruptionError); ok {
		*target = ce
		return true
	}
	return false
}
