// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package report persists coverage runs as binary report files and merges
// them.
//
// A report file is laid out as
//
//	"COVR" | u16 version | u8 compression | payload | u64 checksum
//
// where the checksum is the xxhash64 of the uncompressed payload. The
// payload holds the producer name and every unit ordered by name:
//
//	string name | u64 fingerprint | i32 maxLine | u32 presentLines
//	per present line: u32 line | u32 hits | u32 switchCount
//	    | per switch: u32 keyCount, keyCount x i32 keys
//	    | counters as written by coverage.AppendJumps
//
// All integers are big-endian, strings are a u32 length followed by bytes.
package report

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/parca-dev/coverage-agent/pkg/config"
	"github.com/parca-dev/coverage-agent/pkg/coverage"
)

const (
	magic = "COVR"
	// FormatVersion is the version written by Encode.
	FormatVersion uint16 = 1

	headerSize  = len(magic) + 2 + 1
	trailerSize = 8

	maxStringLen = 1 << 16
	maxUnits     = 1 << 24
	// Upper bound on the highest line number of a single unit.
	maxLineNumber = 1 << 22
)

var (
	ErrBadMagic           = errors.New("not a coverage report")
	ErrUnsupportedVersion = errors.New("unsupported report version")
	ErrChecksum           = errors.New("report checksum mismatch")
)

var byteOrder = coverage.ByteOrder

// Compression is the codec applied to the payload.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

// ParseCompression parses the config representation of a compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case config.CompressionNone:
		return CompressionNone, nil
	case config.CompressionZstd, "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

func (c Compression) String() string {
	if c == CompressionZstd {
		return config.CompressionZstd
	}
	return config.CompressionNone
}

// Header is the decoded preamble of a report.
type Header struct {
	Version     uint16
	Compression Compression
	Producer    string
}

// EncodeOptions control Encode.
type EncodeOptions struct {
	Producer    string
	Compression Compression
}

// Encode writes every unit of run to w. Units that are still being built
// are finished first.
func Encode(w io.Writer, run *coverage.Run, opts EncodeOptions) error {
	b, err := AppendReport(nil, run, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// AppendReport appends the encoded report of run to buf.
func AppendReport(buf []byte, run *coverage.Run, opts EncodeOptions) ([]byte, error) {
	payload := appendPayload(nil, run, opts.Producer)

	buf = append(buf, magic...)
	buf = byteOrder.AppendUint16(buf, FormatVersion)
	buf = append(buf, byte(opts.Compression))
	switch opts.Compression {
	case CompressionNone:
		buf = append(buf, payload...)
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		buf = enc.EncodeAll(payload, buf)
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("close zstd encoder: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown compression %d", opts.Compression)
	}
	return byteOrder.AppendUint64(buf, xxhash.Sum64(payload)), nil
}

func appendString(buf []byte, s string) []byte {
	buf = byteOrder.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendPayload(buf []byte, run *coverage.Run, producer string) []byte {
	buf = appendString(buf, producer)
	units := run.Units()
	buf = byteOrder.AppendUint32(buf, uint32(len(units)))
	for _, u := range units {
		lines := u.Finish()
		present := lines.Present()

		buf = appendString(buf, u.Name())
		buf = byteOrder.AppendUint64(buf, u.Fingerprint())
		buf = byteOrder.AppendUint32(buf, uint32(int32(lines.MaxLine())))
		buf = byteOrder.AppendUint32(buf, uint32(len(present)))
		for _, l := range present {
			j := l.Frozen()
			if j == nil {
				j = coverage.EmptyJumps()
			}
			buf = byteOrder.AppendUint32(buf, uint32(l.Number()))
			buf = byteOrder.AppendUint32(buf, l.Hits.Load())
			buf = byteOrder.AppendUint32(buf, uint32(j.SwitchCount()))
			for _, s := range j.Switches() {
				buf = byteOrder.AppendUint32(buf, uint32(s.KeyCount()))
				for _, k := range s.Keys() {
					buf = byteOrder.AppendUint32(buf, uint32(k))
				}
			}
			buf = coverage.AppendJumps(buf, j)
		}
	}
	return buf
}

// Decode reads a report written by Encode into a new run reporting
// diagnostics to rep.
func Decode(r io.Reader, rep coverage.ErrorReporter) (*coverage.Run, Header, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Header{}, fmt.Errorf("read report: %w", err)
	}
	if len(data) < headerSize+trailerSize || string(data[:len(magic)]) != magic {
		return nil, Header{}, ErrBadMagic
	}

	h := Header{
		Version:     byteOrder.Uint16(data[len(magic):]),
		Compression: Compression(data[len(magic)+2]),
	}
	if h.Version != FormatVersion {
		return nil, h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	body := data[headerSize : len(data)-trailerSize]
	checksum := byteOrder.Uint64(data[len(data)-trailerSize:])

	var payload []byte
	switch h.Compression {
	case CompressionNone:
		payload = body
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, h, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		payload, err = dec.DecodeAll(body, nil)
		if err != nil {
			return nil, h, fmt.Errorf("%w: decompress payload: %w", coverage.ErrCorrupt, err)
		}
	default:
		return nil, h, fmt.Errorf("%w: unknown compression %d", coverage.ErrCorrupt, h.Compression)
	}
	if xxhash.Sum64(payload) != checksum {
		return nil, h, ErrChecksum
	}

	run, producer, err := decodePayload(bytes.NewReader(payload), rep)
	h.Producer = producer
	if err != nil {
		return nil, h, err
	}
	return run, h, nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("%w: string of %d bytes", coverage.ErrCorrupt, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, byteOrder, &v)
	return v, err
}

func decodePayload(r *bytes.Reader, rep coverage.ErrorReporter) (*coverage.Run, string, error) {
	producer, err := readString(r)
	if err != nil {
		return nil, "", fmt.Errorf("read producer: %w", err)
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, producer, fmt.Errorf("read unit count: %w", err)
	}
	if count > maxUnits {
		return nil, producer, fmt.Errorf("%w: %d units", coverage.ErrCorrupt, count)
	}

	run := coverage.NewRun(rep)
	for i := uint32(0); i < count; i++ {
		u, err := decodeUnit(r, rep)
		if err != nil {
			return nil, producer, fmt.Errorf("unit %d: %w", i, err)
		}
		if _, loaded := run.Register(u); loaded {
			return nil, producer, fmt.Errorf("%w: duplicate unit %s", coverage.ErrCorrupt, u.Name())
		}
	}
	if r.Len() != 0 {
		return nil, producer, fmt.Errorf("%w: %d trailing bytes", coverage.ErrCorrupt, r.Len())
	}
	return run, producer, nil
}

func decodeUnit(r *bytes.Reader, rep coverage.ErrorReporter) (*coverage.Unit, error) {
	name, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	var head struct {
		Fingerprint uint64
		MaxLine     int32
		Present     uint32
	}
	if err := binary.Read(r, byteOrder, &head); err != nil {
		return nil, fmt.Errorf("read unit %s: %w", name, err)
	}
	// Every present line takes at least 20 bytes.
	if int64(head.MaxLine) > maxLineNumber {
		return nil, fmt.Errorf("%w: unit %s: max line %d", coverage.ErrCorrupt, name, head.MaxLine)
	}
	if head.MaxLine < coverage.NoLines || int64(head.Present)*20 > int64(r.Len()) || int64(head.Present) > int64(head.MaxLine)+1 {
		return nil, fmt.Errorf("%w: unit %s: %d lines up to %d", coverage.ErrCorrupt, name, head.Present, head.MaxLine)
	}

	var lines coverage.Lines
	if head.MaxLine != coverage.NoLines {
		lines = make(coverage.Lines, int(head.MaxLine)+1)
	}
	for i := uint32(0); i < head.Present; i++ {
		l, err := decodeLine(r)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", name, err)
		}
		n := l.Number()
		if n < 1 || n > int(head.MaxLine) || lines[n] != nil {
			return nil, fmt.Errorf("%w: unit %s: bad line %d", coverage.ErrCorrupt, name, n)
		}
		lines[n] = l
	}
	return coverage.NewFinishedUnit(name, head.Fingerprint, lines, rep), nil
}

func decodeLine(r *bytes.Reader) (*coverage.Line, error) {
	var head [3]uint32
	if err := binary.Read(r, byteOrder, &head); err != nil {
		return nil, fmt.Errorf("read line: %w", err)
	}
	number, hits, switches := head[0], head[1], head[2]
	if int64(switches)*4 > int64(r.Len()) {
		return nil, fmt.Errorf("%w: line %d: %d switches", coverage.ErrCorrupt, number, switches)
	}
	keys := make([][]int32, switches)
	for i := range keys {
		n, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("line %d: read key count: %w", number, err)
		}
		if int64(n)*4 > int64(r.Len()) {
			return nil, fmt.Errorf("%w: line %d: %d keys", coverage.ErrCorrupt, number, n)
		}
		keys[i] = make([]int32, n)
		if err := binary.Read(r, byteOrder, keys[i]); err != nil {
			return nil, fmt.Errorf("line %d: read keys: %w", number, err)
		}
	}
	j, err := coverage.ReadJumps(r, keys)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", number, err)
	}
	return coverage.NewFrozenLine(int(number), hits, j), nil
}
