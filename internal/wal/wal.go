// Package wal implements the on-disk header and record primitives of the
// ledger's write-ahead log: binary encoding, CRC32C checksums, and the
// hash-chain linkage between consecutive records. It has no notion of
// segment files or manifests — see internal/segwal for that layer.
package wal

import (
	"crypto/sha256"
	"encoding/binary"
	"hash/crc32"

	"github.com/decisiongraph/ledger/internal/ledgererr"
)

// Magic is the fixed 8-byte WAL header magic: "DGWAL" followed by the
// bytes 0x00 0x01 0x00.
var Magic = [8]byte{'D', 'G', 'W', 'A', 'L', 0x00, 0x01, 0x00}

const (
	// HeaderSize is the fixed size of the WAL header in bytes.
	HeaderSize = 68

	hashSchemeFieldSize = 32
	graphIDFieldSize    = 20

	// RecordFixedSize is the size of a record's fixed-length fields,
	// excluding the variable-length canonical payload:
	// record_len(4) + sequence(8) + flags(2) + prev_hash(32) + cell_hash(32) + record_crc(4).
	RecordFixedSize = 4 + 8 + 2 + 32 + 32 + 4
)

// castagnoli is the CRC32C polynomial table (hardware-accelerated by
// hash/crc32 on amd64/arm64 when available; pure-Go fallback otherwise —
// this satisfies §4.4's "fallback implementation required" without any
// third-party CRC library, since crc32.MakeTable already provides both
// paths transparently).
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the CRC32C checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// Header is the decoded form of a WAL file's fixed 68-byte header.
type Header struct {
	Version    uint16
	HashScheme string
	GraphID    string
	Flags      uint16
}

func padField(s string, size int) ([]byte, error) {
	b := []byte(s)
	if len(b) > size {
		return nil, ledgererr.New(ledgererr.CodeWALHeader, "field exceeds fixed header width").
			WithDetails(map[string]any{"value": s, "max_len": size})
	}
	out := make([]byte, size)
	copy(out, b)
	return out, nil
}

// EncodeHeader renders h as the fixed 68-byte WAL header, including its
// trailing CRC32C over the preceding 64 bytes.
func EncodeHeader(h Header) ([]byte, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)

	schemeField, err := padField(h.HashScheme, hashSchemeFieldSize)
	if err != nil {
		return nil, err
	}
	copy(buf[10:10+hashSchemeFieldSize], schemeField)

	graphField, err := padField(h.GraphID, graphIDFieldSize)
	if err != nil {
		return nil, err
	}
	off := 10 + hashSchemeFieldSize
	copy(buf[off:off+graphIDFieldSize], graphField)

	off += graphIDFieldSize
	binary.LittleEndian.PutUint16(buf[off:off+2], h.Flags)
	off += 2

	crc := CRC32C(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:off+4], crc)
	return buf, nil
}

// DecodeHeader parses and verifies a 68-byte WAL header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, ledgererr.New(ledgererr.CodeWALHeader, "wal header must be exactly 68 bytes").
			WithDetails(map[string]any{"got_len": len(buf)})
	}
	if string(buf[0:8]) != string(Magic[:]) {
		return Header{}, ledgererr.New(ledgererr.CodeWALHeader, "wal header magic mismatch")
	}
	version := binary.LittleEndian.Uint16(buf[8:10])
	off := 10
	hashScheme := trimPadding(buf[off : off+hashSchemeFieldSize])
	off += hashSchemeFieldSize
	graphID := trimPadding(buf[off : off+graphIDFieldSize])
	off += graphIDFieldSize
	flags := binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	wantCRC := binary.LittleEndian.Uint32(buf[off : off+4])
	gotCRC := CRC32C(buf[:off])
	if wantCRC != gotCRC {
		return Header{}, ledgererr.New(ledgererr.CodeWALHeader, "wal header CRC32C mismatch").
			WithDetails(map[string]any{"expected": wantCRC, "got": gotCRC})
	}
	return Header{Version: version, HashScheme: hashScheme, GraphID: graphID, Flags: flags}, nil
}

func trimPadding(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

// Record is the decoded form of one WAL record.
type Record struct {
	Sequence  uint64
	Flags     uint16
	PrevHash  [32]byte
	CellHash  [32]byte
	Payload   []byte
}

// Encode renders r as its full on-disk byte range: record_len through
// record_crc, per §4.4.
func (r Record) Encode() []byte {
	total := RecordFixedSize + len(r.Payload)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint64(buf[4:12], r.Sequence)
	binary.LittleEndian.PutUint16(buf[12:14], r.Flags)
	copy(buf[14:46], r.PrevHash[:])
	copy(buf[46:78], r.CellHash[:])
	copy(buf[78:78+len(r.Payload)], r.Payload)
	crc := CRC32C(buf[0 : total-4])
	binary.LittleEndian.PutUint32(buf[total-4:total], crc)
	return buf
}

// RecordHash returns SHA-256 over r's full encoded byte range, which
// becomes the next record's PrevHash.
func (r Record) RecordHash() [32]byte {
	return sha256.Sum256(r.Encode())
}

// DecodeRecord parses one record from buf, which must contain exactly the
// record's bytes (record_len through record_crc). It verifies the
// record's own CRC32C.
func DecodeRecord(buf []byte) (Record, error) {
	if len(buf) < RecordFixedSize {
		return Record{}, ledgererr.New(ledgererr.CodeWALCorruption, "record shorter than fixed fields").
			WithDetails(map[string]any{"got_len": len(buf)})
	}
	total := binary.LittleEndian.Uint32(buf[0:4])
	if int(total) != len(buf) {
		return Record{}, ledgererr.New(ledgererr.CodeWALCorruption, "record_len does not match buffer length").
			WithDetails(map[string]any{"record_len": total, "buf_len": len(buf)})
	}
	wantCRC := binary.LittleEndian.Uint32(buf[total-4 : total])
	gotCRC := CRC32C(buf[0 : total-4])
	if wantCRC != gotCRC {
		return Record{}, ledgererr.New(ledgererr.CodeWALCorruption, "record CRC32C mismatch").
			WithDetails(map[string]any{"expected": wantCRC, "got": gotCRC})
	}
	r := Record{
		Sequence: binary.LittleEndian.Uint64(buf[4:12]),
		Flags:    binary.LittleEndian.Uint16(buf[12:14]),
		Payload:  append([]byte(nil), buf[78:total-4]...),
	}
	copy(r.PrevHash[:], buf[14:46])
	copy(r.CellHash[:], buf[46:78])
	return r, nil
}
