package fileserver

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/pierrec/lz4/v4"

	"github.com/lanscatter/masterd/swarm"
)

func writeTestFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), content, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestHandleServesUncompressibleChunkAsIs(t *testing.T) {
	dir := t.TempDir()
	content := []byte("hello chunk world")
	writeTestFile(t, dir, "file.bin", content)

	batch := swarm.Batch{Chunks: []swarm.Chunk{
		{Hash: "H1", Path: "file.bin", Pos: 0, Size: int64(len(content)), CmpRatio: 0.99},
	}}
	srv := New(dir, func() (swarm.Batch, []swarm.Hash, bool) { return batch, nil, true }, nil)

	req := httptest.NewRequest("GET", "/blob/H1", nil)
	w := httptest.NewRecorder()
	srv.Handle(w, req, httprouter.Params{{Key: "hash", Value: "H1"}})

	if w.Header().Get("Content-Encoding") == "lz4" {
		t.Error("expected no lz4 encoding for a high-cmpratio chunk")
	}
	if got := w.Body.String(); got != string(content) {
		t.Errorf("expected body %q, got %q", content, got)
	}

	active, durations := srv.Drain()
	if active != 0 {
		t.Errorf("expected 0 active uploads after completion, got %d", active)
	}
	if len(durations) != 1 {
		t.Fatalf("expected one completed-upload duration, got %d", len(durations))
	}
}

func TestHandleCompressesWithLZ4WhenAccepted(t *testing.T) {
	dir := t.TempDir()
	content := []byte(strings.Repeat("compressible data ", 50))
	writeTestFile(t, dir, "file.bin", content)

	batch := swarm.Batch{Chunks: []swarm.Chunk{
		{Hash: "H2", Path: "file.bin", Pos: 0, Size: int64(len(content)), CmpRatio: 0.5},
	}}
	srv := New(dir, func() (swarm.Batch, []swarm.Hash, bool) { return batch, nil, true }, nil)

	req := httptest.NewRequest("GET", "/blob/H2", nil)
	req.Header.Set("Accept-Encoding", "lz4")
	w := httptest.NewRecorder()
	srv.Handle(w, req, httprouter.Params{{Key: "hash", Value: "H2"}})

	if w.Header().Get("Content-Encoding") != "lz4" {
		t.Fatal("expected lz4 content-encoding for a compressible chunk with Accept-Encoding: lz4")
	}

	r := lz4.NewReader(w.Body)
	decompressed, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(decompressed) != string(content) {
		t.Error("decompressed body did not match original content")
	}
}

func TestHandleSkipsLZ4WhenNotAccepted(t *testing.T) {
	dir := t.TempDir()
	content := []byte("compressible content here")
	writeTestFile(t, dir, "file.bin", content)

	batch := swarm.Batch{Chunks: []swarm.Chunk{
		{Hash: "H3", Path: "file.bin", Pos: 0, Size: int64(len(content)), CmpRatio: 0.3},
	}}
	srv := New(dir, func() (swarm.Batch, []swarm.Hash, bool) { return batch, nil, true }, nil)

	req := httptest.NewRequest("GET", "/blob/H3", nil)
	w := httptest.NewRecorder()
	srv.Handle(w, req, httprouter.Params{{Key: "hash", Value: "H3"}})

	if w.Header().Get("Content-Encoding") == "lz4" {
		t.Error("expected no lz4 encoding when the client did not advertise support")
	}
	if w.Body.String() != string(content) {
		t.Error("expected raw body when lz4 is not negotiated")
	}
}

func TestHandleServesByteOffsetWithinFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("0123456789abcdefghij")
	writeTestFile(t, dir, "multi.bin", content)

	batch := swarm.Batch{Chunks: []swarm.Chunk{
		{Hash: "H4", Path: "multi.bin", Pos: 10, Size: 5, CmpRatio: 0.99},
	}}
	srv := New(dir, func() (swarm.Batch, []swarm.Hash, bool) { return batch, nil, true }, nil)

	req := httptest.NewRequest("GET", "/blob/H4", nil)
	w := httptest.NewRecorder()
	srv.Handle(w, req, httprouter.Params{{Key: "hash", Value: "H4"}})

	if w.Body.String() != "abcde" {
		t.Errorf("expected the byte range at Pos=10 Size=5, got %q", w.Body.String())
	}
}

func TestHandleUnknownHashIs404(t *testing.T) {
	dir := t.TempDir()
	srv := New(dir, func() (swarm.Batch, []swarm.Hash, bool) { return swarm.Batch{}, nil, true }, nil)

	req := httptest.NewRequest("GET", "/blob/nope", nil)
	w := httptest.NewRecorder()
	srv.Handle(w, req, httprouter.Params{{Key: "hash", Value: "nope"}})

	if w.Code != 404 {
		t.Errorf("expected 404 for an unknown hash, got %d", w.Code)
	}
}

func TestHandleBeforeFirstScanIs404(t *testing.T) {
	dir := t.TempDir()
	srv := New(dir, func() (swarm.Batch, []swarm.Hash, bool) { return swarm.Batch{}, nil, false }, nil)

	req := httptest.NewRequest("GET", "/blob/H1", nil)
	w := httptest.NewRecorder()
	srv.Handle(w, req, httprouter.Params{{Key: "hash", Value: "H1"}})

	if w.Code != 404 {
		t.Errorf("expected 404 before the first scan has completed, got %d", w.Code)
	}
}
