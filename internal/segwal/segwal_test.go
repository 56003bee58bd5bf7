package segwal

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "segwal-test-*")
	if err != nil {
		t.Fatalf("unexpected error creating temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestWriter_RoundTripThroughReadAll(t *testing.T) {
	dir := tempDir(t)
	w, err := Open(context.Background(), dir, "HASH_SCHEME_CANONICAL", "graph-1", 0)
	if err != nil {
		t.Fatalf("unexpected error opening writer: %v", err)
	}

	payloads := [][]byte{[]byte("cell-0"), []byte("cell-1"), []byte("cell-2")}
	for _, p := range payloads {
		h := sha256.Sum256(p)
		if _, err := w.Append(p, h); err != nil {
			t.Fatalf("unexpected error appending: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}

	records, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("unexpected error reading all: %v", err)
	}
	if len(records) != len(payloads) {
		t.Fatalf("expected %d records, got %d", len(payloads), len(records))
	}
	for i, rec := range records {
		if string(rec.Payload) != string(payloads[i]) {
			t.Fatalf("record %d payload mismatch: got %q, want %q", i, rec.Payload, payloads[i])
		}
		if rec.Sequence != uint64(i) {
			t.Fatalf("record %d sequence mismatch: got %d", i, rec.Sequence)
		}
	}
}

func TestWriter_SegmentRollsAtCap(t *testing.T) {
	dir := tempDir(t)
	// Cap small enough that each payload forces a new segment: one record
	// is 82+12 = 94 bytes, so header(68) + one record is already over the
	// 128-byte cap. An empty segment always takes its first record, and
	// every later record rolls to a new segment.
	w, err := Open(context.Background(), dir, "HASH_SCHEME_CANONICAL", "graph-1", 68+60)
	if err != nil {
		t.Fatalf("unexpected error opening writer: %v", err)
	}
	for i := 0; i < 3; i++ {
		p := []byte("payload-data")
		h := sha256.Sum256(p)
		if _, err := w.Append(p, h); err != nil {
			t.Fatalf("unexpected error appending record %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}

	names, err := listSegmentFiles(dir)
	if err != nil {
		t.Fatalf("unexpected error listing segments: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected segment roll to produce multiple files, got %d", len(names))
	}

	records, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("unexpected error reading all: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records across segments, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].PrevHash != records[i-1].RecordHash() {
			t.Fatalf("record %d prev_hash does not chain to record %d's hash", i, i-1)
		}
	}
}

func TestRecoverAndRebuild_TruncatesPartialTrailingRecord(t *testing.T) {
	dir := tempDir(t)
	w, err := Open(context.Background(), dir, "HASH_SCHEME_CANONICAL", "graph-1", 0)
	if err != nil {
		t.Fatalf("unexpected error opening writer: %v", err)
	}
	p := []byte("whole-record")
	h := sha256.Sum256(p)
	if _, err := w.Append(p, h); err != nil {
		t.Fatalf("unexpected error appending: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}

	names, err := listSegmentFiles(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	segPath := filepath.Join(dir, names[0])
	info, err := os.Stat(segPath)
	if err != nil {
		t.Fatalf("unexpected error stating segment: %v", err)
	}
	// Simulate a crash mid-write by appending a partial record's worth of
	// garbage bytes that don't form a complete record.
	f, err := os.OpenFile(segPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("unexpected error reopening segment: %v", err)
	}
	if _, err := f.Write([]byte{0x99, 0x99, 0x99}); err != nil {
		t.Fatalf("unexpected error writing garbage: %v", err)
	}
	f.Close()

	m, err := RecoverAndRebuild(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error recovering: %v", err)
	}
	if m.LastSequence != 0 {
		t.Fatalf("expected recovery to keep only the valid first record, got last_sequence=%d", m.LastSequence)
	}

	recoveredInfo, err := os.Stat(segPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recoveredInfo.Size() >= info.Size()+3 {
		t.Fatal("expected trailing partial record to be truncated")
	}
}

func TestWriter_ResumesAfterReopen(t *testing.T) {
	dir := tempDir(t)
	w, err := Open(context.Background(), dir, "HASH_SCHEME_CANONICAL", "graph-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := []byte("first")
	h := sha256.Sum256(p)
	if _, err := w.Append(p, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w2, err := Open(context.Background(), dir, "HASH_SCHEME_CANONICAL", "graph-1", 0)
	if err != nil {
		t.Fatalf("unexpected error reopening: %v", err)
	}
	if w2.NextSequence() != 1 {
		t.Fatalf("expected next sequence 1 after reopen, got %d", w2.NextSequence())
	}
	p2 := []byte("second")
	h2 := sha256.Sum256(p2)
	if _, err := w2.Append(p2, h2); err != nil {
		t.Fatalf("unexpected error appending after reopen: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 total records, got %d", len(records))
	}
}
