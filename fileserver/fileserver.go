// Package fileserver implements the external file server co-hosted with
// the master's control channel: it serves chunk byte ranges over HTTP,
// negotiating LZ4 compression per request, and tracks the upload counters
// the master loop drains into the seed Node on every planner tick. Its
// compression negotiation is grounded on fileio.py's upload_chunk.
package fileserver

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pierrec/lz4/v4"

	"github.com/lanscatter/masterd/persist"
	"github.com/lanscatter/masterd/ratelimit"
	"github.com/lanscatter/masterd/swarm"
)

// lz4CompressThreshold mirrors fileio.py.upload_chunk: LZ4 is only applied
// to chunks that weren't already compressed at scan time.
const lz4CompressThreshold = 0.95

// BatchSource is consulted for the chunk matching a requested hash.
type BatchSource func() (batch swarm.Batch, hashes []swarm.Hash, ok bool)

// Server serves GET /blob/{hash} from BaseDir and implements
// master.UploadCounters so the master loop can drain its upload
// bookkeeping into the seed Node.
type Server struct {
	BaseDir    string
	Batch      BatchSource
	Logger     *persist.Logger
	NoCompress bool

	mu       sync.Mutex
	active   int
	finished []float64
}

// New returns a Server rooted at baseDir, resolving chunks from batch.
func New(baseDir string, batch BatchSource, logger *persist.Logger) *Server {
	return &Server{BaseDir: baseDir, Batch: batch, Logger: logger}
}

// Drain implements master.UploadCounters: it returns the number of
// uploads in flight right now and the durations of uploads that finished
// since the last Drain, then clears the finished list.
func (s *Server) Drain() (active int, finishedDurations []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.finished
	s.finished = nil
	return s.active, d
}

// Handle serves one chunk, matching httprouter.Handle so it can be wired
// directly into master.NewServer's blob route.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	hash := swarm.Hash(ps.ByName("hash"))
	batch, _, ok := s.Batch()
	if !ok {
		http.NotFound(w, r)
		return
	}
	chunk, found := findChunk(batch, hash)
	if !found {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(filepath.Join(s.BaseDir, filepath.FromSlash(chunk.Path)))
	if err != nil {
		http.Error(w, "chunk file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	s.beginUpload()
	start := time.Now()
	defer func() { s.endUpload(time.Since(start)) }()

	useLZ4 := !s.NoCompress && chunk.CmpRatio < lz4CompressThreshold && strings.Contains(r.Header.Get("Accept-Encoding"), "lz4")

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "inline")
	if useLZ4 {
		w.Header().Set("Content-Encoding", "lz4")
	}
	w.WriteHeader(http.StatusOK)

	var out io.Writer = ratelimit.NewRLReadWriter(writeOnly{w})
	if useLZ4 {
		lzw := lz4.NewWriter(out)
		out = lzw
		defer lzw.Close()
	}

	section := io.NewSectionReader(f, chunk.Pos, chunk.Size)
	if _, err := io.Copy(out, section); err != nil && s.Logger != nil {
		s.Logger.Println("UPLOAD ERROR:", chunk.Hash, err)
	}
}

func (s *Server) beginUpload() {
	s.mu.Lock()
	s.active++
	s.mu.Unlock()
}

func (s *Server) endUpload(d time.Duration) {
	s.mu.Lock()
	s.active--
	s.finished = append(s.finished, d.Seconds())
	s.mu.Unlock()
}

func findChunk(b swarm.Batch, hash swarm.Hash) (swarm.Chunk, bool) {
	for _, c := range b.Chunks {
		if c.Hash == hash {
			return c, true
		}
	}
	return swarm.Chunk{}, false
}

// writeOnly adapts an http.ResponseWriter to io.ReadWriter so it can pass
// through ratelimit.NewRLReadWriter, which only ever calls Write on it.
type writeOnly struct{ w io.Writer }

func (w writeOnly) Write(p []byte) (int, error) { return w.w.Write(p) }
func (w writeOnly) Read([]byte) (int, error)    { return 0, io.EOF }
