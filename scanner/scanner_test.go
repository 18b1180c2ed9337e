package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestScanHashesEachFileFully(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello world")
	writeFile(t, dir, "b.txt", "goodbye world")

	s := New(dir, 1<<20)
	batch, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Chunks) != 2 {
		t.Fatalf("expected 2 chunks (one per file), got %d", len(batch.Chunks))
	}
	for _, c := range batch.Chunks {
		if c.Pos != 0 {
			t.Errorf("single-chunk file should start at Pos 0, got %d", c.Pos)
		}
		if c.Hash == "" {
			t.Error("expected a non-empty content hash")
		}
	}
}

func TestScanSplitsLargeFileIntoMultipleChunks(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 25)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	writeFile(t, dir, "big.bin", string(content))

	s := New(dir, 10)
	batch, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Chunks) != 3 {
		t.Fatalf("expected 3 chunks (10+10+5 bytes), got %d", len(batch.Chunks))
	}
	if batch.Chunks[0].Size != 10 || batch.Chunks[1].Size != 10 || batch.Chunks[2].Size != 5 {
		t.Errorf("unexpected chunk sizes: %d, %d, %d",
			batch.Chunks[0].Size, batch.Chunks[1].Size, batch.Chunks[2].Size)
	}
	if batch.Chunks[1].Pos != 10 || batch.Chunks[2].Pos != 20 {
		t.Errorf("unexpected chunk offsets: %d, %d", batch.Chunks[1].Pos, batch.Chunks[2].Pos)
	}
}

func TestScanIsStableAcrossRescans(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "unchanged content")

	s := New(dir, 1<<20)
	first, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(second) {
		t.Error("two scans of an unchanged directory should produce an equal Batch")
	}
}

func TestScanDetectsContentChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "version one")

	s := New(dir, 1<<20)
	first, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "a.txt", "version two, different length")
	second, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if first.Equal(second) {
		t.Error("expected a content change to produce a different Batch")
	}
}

func TestScanNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "top.txt", "top level")
	writeFile(t, filepath.Join(dir, "sub"), "nested.txt", "nested level")

	s := New(dir, 1<<20)
	batch, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Chunks) != 2 {
		t.Fatalf("expected 2 chunks across the tree, got %d", len(batch.Chunks))
	}
	var sawNested bool
	for _, c := range batch.Chunks {
		if c.Path == filepath.ToSlash(filepath.Join("sub", "nested.txt")) {
			sawNested = true
		}
	}
	if !sawNested {
		t.Error("expected a chunk with a forward-slashed nested path")
	}
}

func TestScanRootNotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "file.txt", "not a dir")

	s := New(filepath.Join(dir, "file.txt"), 1<<20)
	if _, err := s.Scan(); err == nil {
		t.Error("expected an error when Root is a file, not a directory")
	}
}

func TestEstimateCompressibilityDistinguishesRepetitiveFromRandom(t *testing.T) {
	repetitive := make([]byte, 4096)
	for i := range repetitive {
		repetitive[i] = 'x'
	}
	random := make([]byte, 4096)
	for i := range random {
		random[i] = byte(i*2654435761 + 17)
	}

	repRatio := estimateCompressibility(repetitive)
	randRatio := estimateCompressibility(random)

	if repRatio >= randRatio {
		t.Errorf("expected repetitive data to compress better than pseudo-random data, got %f vs %f", repRatio, randRatio)
	}
}
