// Package dataset reads and writes training records, one "score: fen" line
// per position. Paths ending in .zst are zstd-compressed.
//
// The score is the side-to-move score in centipawns. Mate scores are written
// as "#N" (N moves to mate, negative when the side to move is mated).
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Record is one scored position.
type Record struct {
	Score int
	Mate  bool
	FEN   string
}

func (r Record) String() string {
	if r.Mate {
		return "#" + strconv.Itoa(r.Score) + ": " + r.FEN
	}
	return strconv.Itoa(r.Score) + ": " + r.FEN
}

// ParseLine decodes one record line.
func ParseLine(line string) (Record, error) {
	score, fen, ok := strings.Cut(line, ": ")
	if !ok || strings.TrimSpace(fen) == "" {
		return Record{}, fmt.Errorf("malformed record %q", line)
	}

	var r Record
	if strings.HasPrefix(score, "#") {
		r.Mate = true
		score = score[1:]
	}
	n, err := strconv.Atoi(score)
	if err != nil {
		return Record{}, fmt.Errorf("malformed score in %q: %w", line, err)
	}
	r.Score = n
	r.FEN = strings.TrimSpace(fen)
	return r, nil
}

// IsCompressed reports whether path names a zstd-compressed dataset.
func IsCompressed(path string) bool { return strings.HasSuffix(path, ".zst") }

// Writer appends records. It is safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	file  io.Closer // nil when the caller owns the destination
	zw    *zstd.Encoder
	bw    *bufio.Writer
	count int64
}

// Create creates (truncating) the dataset file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}
	w, err := NewWriter(f, IsCompressed(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriter writes records to dst, compressing them when compress is set.
// Close flushes but does not close dst.
func NewWriter(dst io.Writer, compress bool) (*Writer, error) {
	w := &Writer{}
	if compress {
		zw, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		w.zw = zw
		dst = zw
	}
	w.bw = bufio.NewWriterSize(dst, 64*1024)
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(r Record) error {
	if strings.ContainsAny(r.FEN, "\n\r") {
		return fmt.Errorf("FEN contains a line break: %q", r.FEN)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.bw.WriteString(r.String() + "\n"); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Flush pushes buffered records to the destination. Compressed output is
// only complete after Close.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bw.Flush()
}

// Close flushes everything and closes the file opened by Create.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.bw.Flush()
	if w.zw != nil {
		if cerr := w.zw.Close(); err == nil {
			err = cerr
		}
	}
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}
	return nil
}

// Reader iterates over records.
//
//	for r.Next() {
//		rec := r.Record()
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	file *os.File
	zr   *zstd.Decoder
	sc   *bufio.Scanner
	line int
	rec  Record
	err  error
}

// Open opens the dataset at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	r, err := NewReader(f, IsCompressed(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader reads records from src.
func NewReader(src io.Reader, compressed bool) (*Reader, error) {
	r := &Reader{}
	if compressed {
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		r.zr = zr
		src = zr
	}
	r.sc = bufio.NewScanner(src)
	return r, nil
}

// Next advances to the next record. Blank lines are skipped.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.sc.Scan() {
		r.line++
		line := strings.TrimSpace(r.sc.Text())
		if line == "" {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			r.err = fmt.Errorf("line %d: %w", r.line, err)
			return false
		}
		r.rec = rec
		return true
	}
	r.err = r.sc.Err()
	return false
}

// Record returns the current record.
func (r *Reader) Record() Record { return r.rec }

// Err returns the first error met by Next.
func (r *Reader) Err() error { return r.err }

// Close releases the decoder and the file opened by Open.
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ReadAll loads every record in path.
func ReadAll(path string) ([]Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Record
	for r.Next() {
		out = append(out, r.Record())
	}
	return out, r.Err()
}
