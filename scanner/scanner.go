// Package scanner implements the directory chunker: the external
// collaborator that turns a directory tree into a swarm.Batch. It exists
// only so the daemon has something to feed master.Loop; the planner and
// swarm core never look inside a Chunk's bytes.
package scanner

import (
	"bytes"
	"compress/flate"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/NebulousLabs/errors"

	"github.com/lanscatter/masterd/swarm"
)

// errNotADirectory is returned by Scan if Root does not exist or is not a
// directory.
var errNotADirectory = errors.New("scan root is not a directory")

// compressSampleSize bounds how much of a chunk is fed through flate to
// estimate CmpRatio, keeping the scan cheap on large files.
const compressSampleSize = 8192

// DirScanner walks Root and splits every file into fixed-size chunks,
// content-hashed with SHA-256. It implements master.Scanner.
type DirScanner struct {
	Root      string
	ChunkSize int64
}

// New returns a DirScanner. chunkSize <= 0 is replaced with a 4 MiB
// default.
func New(root string, chunkSize int64) *DirScanner {
	if chunkSize <= 0 {
		chunkSize = 4 << 20
	}
	return &DirScanner{Root: root, ChunkSize: chunkSize}
}

// Scan walks Root and returns the resulting Batch. A file that vanishes
// mid-walk surfaces as an error; the caller (master.Loop) logs it and
// keeps the previous Batch authoritative.
func (s *DirScanner) Scan() (swarm.Batch, error) {
	info, err := os.Stat(s.Root)
	if err != nil {
		return swarm.Batch{}, err
	}
	if !info.IsDir() {
		return swarm.Batch{}, errNotADirectory
	}

	var chunks []swarm.Chunk
	err = filepath.Walk(s.Root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return err
		}
		fileChunks, err := s.chunkFile(path, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		chunks = append(chunks, fileChunks...)
		return nil
	})
	if err != nil {
		return swarm.Batch{}, err
	}
	return swarm.Batch{Chunks: chunks}, nil
}

// chunkFile splits one file into ChunkSize pieces, hashing and estimating
// the compressibility of each.
func (s *DirScanner) chunkFile(path, relPath string) ([]swarm.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []swarm.Chunk
	var pos int64
	buf := make([]byte, s.ChunkSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			sum := sha256.Sum256(buf[:n])
			chunks = append(chunks, swarm.Chunk{
				Hash:     swarm.Hash(hex.EncodeToString(sum[:])),
				Path:     relPath,
				Pos:      pos,
				Size:     int64(n),
				CmpRatio: estimateCompressibility(buf[:n]),
			})
			pos += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// estimateCompressibility runs a sample of a chunk through flate at its
// fastest setting and returns the resulting size ratio, standing in for
// fileio.py's real cmpratio (measured from the actual LZ4 compression
// applied on upload). A ratio near 1 means "don't bother compressing
// again"; the file server's lz4CompressThreshold acts on this value.
func estimateCompressibility(data []byte) float64 {
	if len(data) == 0 {
		return 1
	}
	sample := data
	if len(sample) > compressSampleSize {
		sample = sample[:compressSampleSize]
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return 1
	}
	w.Write(sample)
	w.Close()

	ratio := float64(buf.Len()) / float64(len(sample))
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}
