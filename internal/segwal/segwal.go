// Package segwal implements the segmented, crash-recoverable on-disk
// write-ahead log built from internal/wal's header and record primitives:
// segment rolling, the manifest cache, and startup/crash recovery by
// scanning segment files and rebuilding the manifest from scratch.
package segwal

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/decisiongraph/ledger/internal/ledgererr"
	"github.com/decisiongraph/ledger/internal/wal"
)

// DefaultSegmentCap is the default byte cap before a segment is rolled.
const DefaultSegmentCap int64 = 64 * 1024 * 1024

const segmentFileSuffix = ".wal"

func segmentFileName(firstSeq uint64) string {
	return fmt.Sprintf("%020d%s", firstSeq, segmentFileSuffix)
}

func manifestPath(dir string) string {
	return filepath.Join(dir, "manifest.json")
}

// SegmentMeta describes one segment file in the manifest.
type SegmentMeta struct {
	FileName       string `json:"file_name"`
	FirstSequence  uint64 `json:"first_sequence"`
	LastSequence   uint64 `json:"last_sequence"`
	RecordCount    int    `json:"record_count"`
	LastRecordHash string `json:"last_record_hash"`
	ByteSize       int64  `json:"byte_size"`
}

// Manifest is the JSON cache of segment metadata. It is never the source
// of truth: a missing or stale manifest triggers RecoverAndRebuild, never
// a hard failure.
type Manifest struct {
	Version        int           `json:"version"`
	HashScheme     string        `json:"hash_scheme"`
	GraphID        string        `json:"graph_id"`
	Segments       []SegmentMeta `json:"segments"`
	LastSequence   int64         `json:"last_sequence"`
	LastRecordHash string        `json:"last_record_hash"`
}

func hashHex(h [32]byte) string { return hex.EncodeToString(h[:]) }

func hexToHash(s string) [32]byte {
	var h [32]byte
	if s == "" {
		return h
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h
	}
	copy(h[:], b)
	return h
}

// writeManifestAtomic writes m to dir/manifest.json via temp file + rename,
// so a torn manifest is impossible (§5 ordering guarantee).
func writeManifestAtomic(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeInternal, "failed to marshal manifest", err)
	}
	tmp := manifestPath(dir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ledgererr.Wrap(ledgererr.CodeInternal, "failed to write manifest temp file", err)
	}
	if err := os.Rename(tmp, manifestPath(dir)); err != nil {
		return ledgererr.Wrap(ledgererr.CodeInternal, "failed to rename manifest into place", err)
	}
	return nil
}

func listSegmentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ledgererr.Wrap(ledgererr.CodeInternal, "failed to list wal directory", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == segmentFileSuffix {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// segmentScanResult is the outcome of verifying one segment file in
// isolation: its own header and the CRC of each record it contains. The
// hash chain between records is not checked here; the caller checks it.
type segmentScanResult struct {
	fileName       string
	header         wal.Header
	records        []wal.Record
	recordHashes   [][32]byte
	validByteSize  int64 // offset of the last fully valid record's end
	truncated      bool  // a trailing partial record was found and excluded
}

func scanSegmentFile(path string) (segmentScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return segmentScanResult{}, ledgererr.Wrap(ledgererr.CodeInternal, "failed to open segment file", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	headerBuf := make([]byte, wal.HeaderSize)
	if _, err := io.ReadFull(br, headerBuf); err != nil {
		return segmentScanResult{}, ledgererr.Wrap(ledgererr.CodeWALHeader, "failed to read segment header", err)
	}
	header, err := wal.DecodeHeader(headerBuf)
	if err != nil {
		return segmentScanResult{}, err
	}

	result := segmentScanResult{fileName: filepath.Base(path), header: header, validByteSize: int64(wal.HeaderSize)}

	for {
		lenBuf := make([]byte, 4)
		n, err := io.ReadFull(br, lenBuf)
		if err == io.EOF {
			break
		}
		if err != nil || n < 4 {
			result.truncated = true
			break
		}
		recordLen := binary.LittleEndian.Uint32(lenBuf)
		if recordLen < wal.RecordFixedSize || recordLen > 256*1024*1024 {
			result.truncated = true
			break
		}
		rest := make([]byte, recordLen-4)
		n, err = io.ReadFull(br, rest)
		if err != nil || uint32(n) != recordLen-4 {
			// Trailing partial record: mid-write power loss. Truncate here.
			result.truncated = true
			break
		}
		full := append(lenBuf, rest...)
		rec, err := wal.DecodeRecord(full)
		if err != nil {
			// CRC mismatch on a length-complete record is treated like a
			// partial write: the segment is truncated before this record.
			result.truncated = true
			break
		}
		result.records = append(result.records, rec)
		result.recordHashes = append(result.recordHashes, rec.RecordHash())
		result.validByteSize += int64(recordLen)
	}
	return result, nil
}

// RecoverAndRebuild scans every segment file in dir, verifies CRCs and
// hash-chain continuity, truncates any trailing partially-written record,
// and writes a freshly rebuilt manifest atomically. It is the sole
// authority for WAL state after a crash or on startup — the stored
// manifest, if any, is never trusted.
//
// Per-segment header and CRC verification runs concurrently (one
// errgroup goroutine per segment); sequence and hash-chain checks, within
// and across segments, run sequentially afterwards.
func RecoverAndRebuild(ctx context.Context, dir string) (*Manifest, error) {
	names, err := listSegmentFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		m := &Manifest{Version: 1, LastSequence: -1}
		if err := writeManifestAtomic(dir, *m); err != nil {
			return nil, err
		}
		return m, nil
	}

	results := make([]segmentScanResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			r, err := scanSegmentFile(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Manifest{Version: 1, LastSequence: -1}
	m.HashScheme = results[0].header.HashScheme
	m.GraphID = results[0].header.GraphID

	var expectedSeq uint64
	var prevHash [32]byte
	haveSeq := false
	truncatedSegmentSeen := false

	for _, r := range results {
		if r.header.HashScheme != m.HashScheme || r.header.GraphID != m.GraphID {
			return nil, ledgererr.New(ledgererr.CodeWALHeader, "segment header diverges from chain's hash_scheme/graph_id").
				WithDetails(map[string]any{"file": r.fileName})
		}
		if truncatedSegmentSeen && len(r.records) > 0 {
			// A segment after one with a truncated tail should not exist
			// under normal operation (segments roll only after a clean
			// fsync+close); treat as a sequence gap.
			return nil, ledgererr.New(ledgererr.CodeWALSequence, "segment found after a truncated segment").
				WithDetails(map[string]any{"file": r.fileName})
		}

		meta := SegmentMeta{FileName: r.fileName, ByteSize: r.validByteSize}
		for i, rec := range r.records {
			if haveSeq {
				if rec.Sequence != expectedSeq {
					return nil, ledgererr.New(ledgererr.CodeWALSequence, "wal sequence gap detected").
						WithDetails(map[string]any{"expected": expectedSeq, "got": rec.Sequence, "file": r.fileName})
				}
				if rec.PrevHash != prevHash {
					return nil, ledgererr.New(ledgererr.CodeWALChain, "wal inter-record hash chain broken").
						WithDetails(map[string]any{"file": r.fileName, "sequence": rec.Sequence})
				}
			} else {
				meta.FirstSequence = rec.Sequence
			}
			prevHash = r.recordHashes[i]
			expectedSeq = rec.Sequence + 1
			haveSeq = true
			meta.LastSequence = rec.Sequence
			meta.RecordCount++
		}
		if len(r.records) > 0 {
			meta.LastRecordHash = hashHex(prevHash)
		}
		if r.truncated {
			truncatedSegmentSeen = true
			if err := truncateFile(filepath.Join(dir, r.fileName), r.validByteSize); err != nil {
				return nil, err
			}
		}
		m.Segments = append(m.Segments, meta)
	}

	if haveSeq {
		m.LastSequence = int64(expectedSeq) - 1
		m.LastRecordHash = hashHex(prevHash)
	}

	if err := writeManifestAtomic(dir, *m); err != nil {
		return nil, err
	}
	return m, nil
}

func truncateFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeInternal, "failed to open segment for truncation", err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		return ledgererr.Wrap(ledgererr.CodeWALCorruption, "failed to truncate partial trailing record", err)
	}
	return nil
}

// Writer appends to one WAL directory. It takes no file lock: nothing
// stops a second Writer, in this or another process, from opening the
// same directory. os.O_EXCL applies only when a new segment file is
// created.
type Writer struct {
	dir         string
	hashScheme  string
	graphID     string
	segmentCap  int64
	f           *os.File
	w           *bufio.Writer
	curFileName string
	curSize     int64
	curFirstSeq uint64
	curCount    int
	nextSeq     uint64
	lastHash    [32]byte
	manifest    Manifest
}

// Open recovers dir's WAL state and returns a Writer positioned to
// append the next record. segmentCap <= 0 selects DefaultSegmentCap.
func Open(ctx context.Context, dir, hashScheme, graphID string, segmentCap int64) (*Writer, error) {
	if segmentCap <= 0 {
		segmentCap = DefaultSegmentCap
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeInternal, "failed to create wal directory", err)
	}
	m, err := RecoverAndRebuild(ctx, dir)
	if err != nil {
		return nil, err
	}

	w := &Writer{dir: dir, hashScheme: hashScheme, graphID: graphID, segmentCap: segmentCap, manifest: *m}
	if m.LastSequence >= 0 {
		w.nextSeq = uint64(m.LastSequence) + 1
		w.lastHash = hexToHash(m.LastRecordHash)
		last := m.Segments[len(m.Segments)-1]
		w.curFileName = last.FileName
		w.curFirstSeq = last.FirstSequence
		w.curSize = last.ByteSize
		w.curCount = last.RecordCount
		f, err := os.OpenFile(filepath.Join(dir, last.FileName), os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, ledgererr.Wrap(ledgererr.CodeInternal, "failed to reopen active segment", err)
		}
		w.f = f
		w.w = bufio.NewWriter(f)
	} else {
		if err := w.rollSegment(0); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Writer) rollSegment(firstSeq uint64) error {
	if w.f != nil {
		if err := w.closeCurrent(); err != nil {
			return err
		}
	}
	name := segmentFileName(firstSeq)
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeInternal, "failed to create new segment", err)
	}
	header, err := wal.EncodeHeader(wal.Header{Version: 1, HashScheme: w.hashScheme, GraphID: w.graphID})
	if err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(header); err != nil {
		f.Close()
		return ledgererr.Wrap(ledgererr.CodeInternal, "failed to write segment header", err)
	}
	w.f = f
	w.w = bufio.NewWriter(f)
	w.curFileName = name
	w.curFirstSeq = firstSeq
	w.curSize = int64(wal.HeaderSize)
	w.curCount = 0
	w.manifest.Segments = append(w.manifest.Segments, SegmentMeta{
		FileName:      name,
		FirstSequence: firstSeq,
		ByteSize:      w.curSize,
	})
	return nil
}

func (w *Writer) closeCurrent() error {
	if w.f == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeInternal, "failed to flush segment writer", err)
	}
	if err := w.f.Sync(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeInternal, "failed to fsync segment on close", err)
	}
	if err := w.f.Close(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeInternal, "failed to close segment", err)
	}
	w.f = nil
	w.w = nil
	return nil
}

// Append writes one record carrying payload (the caller's encoded cell)
// and cellHash (SHA-256 of payload), rolling to a new segment first if
// the write would exceed the cap. The record and its containing segment
// are fsynced before Append returns, satisfying WAL durability (§4.3
// rule 8: the chain head must not advance until this returns nil).
func (w *Writer) Append(payload []byte, cellHash [32]byte) (wal.Record, error) {
	rec := wal.Record{
		Sequence: w.nextSeq,
		PrevHash: w.lastHash,
		CellHash: cellHash,
		Payload:  payload,
	}
	encoded := rec.Encode()

	if w.curSize+int64(len(encoded)) > w.segmentCap && w.curSize > int64(wal.HeaderSize) {
		if err := w.rollSegment(w.nextSeq); err != nil {
			return wal.Record{}, err
		}
	}

	if _, err := w.w.Write(encoded); err != nil {
		return wal.Record{}, ledgererr.Wrap(ledgererr.CodeInternal, "failed to write wal record", err)
	}
	if err := w.w.Flush(); err != nil {
		return wal.Record{}, ledgererr.Wrap(ledgererr.CodeInternal, "failed to flush wal record", err)
	}
	if err := w.f.Sync(); err != nil {
		return wal.Record{}, ledgererr.Wrap(ledgererr.CodeInternal, "failed to fsync wal record", err)
	}

	w.curSize += int64(len(encoded))
	w.curCount++
	w.lastHash = rec.RecordHash()
	w.nextSeq++

	last := &w.manifest.Segments[len(w.manifest.Segments)-1]
	last.LastSequence = rec.Sequence
	last.RecordCount = w.curCount
	last.ByteSize = w.curSize
	last.LastRecordHash = hashHex(w.lastHash)
	w.manifest.HashScheme = w.hashScheme
	w.manifest.GraphID = w.graphID
	w.manifest.LastSequence = int64(rec.Sequence)
	w.manifest.LastRecordHash = hashHex(w.lastHash)

	if err := writeManifestAtomic(w.dir, w.manifest); err != nil {
		return wal.Record{}, err
	}
	return rec, nil
}

// Close flushes and fsyncs the active segment.
func (w *Writer) Close() error {
	return w.closeCurrent()
}

// NextSequence returns the sequence number the next Append will use.
func (w *Writer) NextSequence() uint64 { return w.nextSeq }

// ReadAll scans every segment in dir in order and returns the full
// record sequence. Used by replay/verify tooling; does not mutate any
// on-disk state.
func ReadAll(dir string) ([]wal.Record, error) {
	names, err := listSegmentFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []wal.Record
	for _, name := range names {
		r, err := scanSegmentFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, r.records...)
	}
	return out, nil
}
