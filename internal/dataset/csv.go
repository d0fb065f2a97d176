package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wspeirs/fishermann/internal/board"
)

// CSVHeader is the header row written by ExportCSV.
var CSVHeader = []string{"fen", "side", "score", "mate", "white_score"}

// ImportStats counts what ImportCSV did.
type ImportStats struct {
	Imported int
	Skipped  int // Rows with an unparseable FEN or score
}

// ExportCSV writes every record of r as a CSV row. white_score is the score
// from white's point of view.
func ExportCSV(r *Reader, w *csv.Writer) (int, error) {
	if err := w.Write(CSVHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	n := 0
	for r.Next() {
		rec := r.Record()
		side, white := "white", rec.Score
		if fields := strings.Fields(rec.FEN); len(fields) > 1 && fields[1] == "b" {
			side, white = "black", -rec.Score
		}
		row := []string{
			rec.FEN,
			side,
			strconv.Itoa(rec.Score),
			strconv.FormatBool(rec.Mate),
			strconv.Itoa(white),
		}
		if err := w.Write(row); err != nil {
			return n, fmt.Errorf("write row: %w", err)
		}
		n++
	}
	if err := r.Err(); err != nil {
		return n, err
	}
	w.Flush()
	return n, w.Error()
}

// ImportCSV reads rows with at least fen and score columns (mate optional,
// any order, located by header name) and writes them to w. Rows whose FEN
// does not parse are skipped.
func ImportCSV(r *csv.Reader, w *Writer) (ImportStats, error) {
	var stats ImportStats

	header, err := r.Read()
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	fenCol, okFEN := cols["fen"]
	scoreCol, okScore := cols["score"]
	if !okFEN || !okScore {
		return stats, fmt.Errorf("invalid header: need fen and score columns, got %v", header)
	}
	mateCol, hasMate := cols["mate"]

	r.FieldsPerRecord = -1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read row: %w", err)
		}
		if len(row) <= fenCol || len(row) <= scoreCol || (hasMate && len(row) <= mateCol) {
			stats.Skipped++
			continue
		}

		p, err := board.Parse(row[fenCol])
		if err != nil {
			stats.Skipped++
			continue
		}
		score, err := strconv.Atoi(strings.TrimSpace(row[scoreCol]))
		if err != nil {
			stats.Skipped++
			continue
		}
		rec := Record{Score: score, FEN: p.EPD()}
		if hasMate {
			rec.Mate, _ = strconv.ParseBool(strings.TrimSpace(row[mateCol]))
		}
		if err := w.Write(rec); err != nil {
			return stats, err
		}
		stats.Imported++
	}
	return stats, nil
}
