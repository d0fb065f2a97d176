// Package enginetest provides a scripted UCI engine that talks over
// in-memory pipes, for tests that need an engine without a real binary.
package enginetest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Request is the search the fake was asked to run.
type Request struct {
	FEN     string
	Depth   int
	Options map[string]string // setoption values seen so far, by name
}

// Engine is a fake UCI engine. Configure the exported fields before calling
// Pipes.
type Engine struct {
	Name     string
	Author   string
	Preamble []string // Banner lines printed before the id lines
	Options  []string // Raw "option ..." lines advertised after the id lines

	// ReadyReply replaces "readyok". OptionReplies replaces it only for the
	// isready that follows a setoption of the named option.
	ReadyReply    string
	OptionReplies map[string]string

	// Search produces the lines written after "go". Nil uses Script.
	Search func(Request) []string
	// ExitAfterGo closes the engine's stdout right after the search output,
	// like a process that crashed mid-analysis.
	ExitAfterGo bool

	mu       sync.Mutex
	received []string
	options  map[string]string
	done     chan struct{}
}

// New returns a fake engine with Stockfish-like defaults.
func New() *Engine {
	return &Engine{
		Name:   "Fakefish 1",
		Author: "the fishermann tests",
		Options: []string{
			"option name Threads type spin default 1 min 1 max 1024",
			"option name Hash type spin default 16 min 1 max 33554432",
			"option name MultiPV type spin default 1 min 1 max 500",
			"option name UCI_AnalyseMode type check default false",
		},
	}
}

// Pipes starts the engine loop and returns the engine's stdout (for the
// client to read) and stdin (for the client to write).
func (e *Engine) Pipes() (io.ReadCloser, io.WriteCloser) {
	outR, outW := io.Pipe()
	inR, inW := io.Pipe()

	e.mu.Lock()
	e.options = make(map[string]string)
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.run(inR, outW)
	return outR, inW
}

// Wait blocks until the engine loop has exited (after quit or stdin EOF).
func (e *Engine) Wait() { <-e.done }

// Received returns every command line received so far.
func (e *Engine) Received() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.received...)
}

// Count returns how many received commands start with the given keyword.
func (e *Engine) Count(keyword string) int {
	n := 0
	for _, line := range e.Received() {
		if f := strings.Fields(line); len(f) > 0 && f[0] == keyword {
			n++
		}
	}
	return n
}

// OptionValue returns the last value set for name.
func (e *Engine) OptionValue(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.options[name]
	return v, ok
}

func (e *Engine) run(in *io.PipeReader, out *io.PipeWriter) {
	defer close(e.done)
	defer out.Close()
	defer in.Close()

	var (
		fen        string
		lastOption string
	)
	write := func(lines ...string) bool {
		for _, l := range lines {
			if _, err := io.WriteString(out, l+"\n"); err != nil {
				return false
			}
		}
		return true
	}

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		e.mu.Lock()
		e.received = append(e.received, line)
		e.mu.Unlock()

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		ok := true
		switch fields[0] {
		case "uci":
			lines := append([]string(nil), e.Preamble...)
			lines = append(lines, "id name "+e.Name, "id author "+e.Author)
			lines = append(lines, e.Options...)
			ok = write(append(lines, "uciok")...)
		case "isready":
			reply := "readyok"
			if e.ReadyReply != "" {
				reply = e.ReadyReply
			}
			if r, found := e.OptionReplies[lastOption]; found && lastOption != "" {
				reply = r
			}
			lastOption = ""
			ok = write(reply)
		case "setoption":
			name, value := splitSetOption(fields)
			lastOption = name
			e.mu.Lock()
			e.options[name] = value
			e.mu.Unlock()
		case "position":
			if i := strings.Index(line, " fen "); i >= 0 {
				fen = strings.TrimSpace(line[i+len(" fen "):])
			} else {
				fen = "startpos"
			}
		case "go":
			depth := 1
			for i := 1; i+1 < len(fields); i++ {
				if fields[i] == "depth" {
					depth, _ = strconv.Atoi(fields[i+1])
				}
			}
			search := e.Search
			if search == nil {
				search = func(r Request) []string { return Script(r.Depth, 1) }
			}
			e.mu.Lock()
			opts := make(map[string]string, len(e.options))
			for k, v := range e.options {
				opts[k] = v
			}
			e.mu.Unlock()
			ok = write(search(Request{FEN: fen, Depth: depth, Options: opts})...)
			if e.ExitAfterGo {
				return
			}
		case "quit":
			return
		}
		if !ok {
			return
		}
	}
}

func splitSetOption(fields []string) (name, value string) {
	var nameParts, valueParts []string
	target := &nameParts
	for _, f := range fields[1:] {
		switch f {
		case "name":
			target = &nameParts
		case "value":
			target = &valueParts
		default:
			*target = append(*target, f)
		}
	}
	return strings.Join(nameParts, " "), strings.Join(valueParts, " ")
}

// Script returns a plausible search transcript: for every depth up to depth,
// one info line per MultiPV index, then bestmove. Line k at depth d scores
// 10*d - k + 1 centipawns and starts with the k-th move of e2e4 d2d4 g1f3
// c2c4 b1c3.
func Script(depth, multiPV int) []string {
	firsts := []string{"e2e4", "d2d4", "g1f3", "c2c4", "b1c3"}
	if multiPV > len(firsts) {
		multiPV = len(firsts)
	}
	var lines []string
	for d := 1; d <= depth; d++ {
		for k := 1; k <= multiPV; k++ {
			lines = append(lines, fmt.Sprintf(
				"info depth %d seldepth %d multipv %d score cp %d nodes %d nps 1000 pv %s e7e5",
				d, d+2, k, 10*d-k+1, 100*d, firsts[k-1]))
		}
	}
	return append(lines, "bestmove "+firsts[0]+" ponder e7e5")
}
