// Package engine drives an external UCI chess engine (Stockfish or any
// compatible program) over its stdin/stdout.
//
// A Session performs the startup handshake, applies options with a ready
// round-trip each, and streams incremental analysis through a Stream. One
// analysis runs at a time; a second Analyze waits until the previous
// stream's reader has seen its bestmove.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrProtocol reports a reply the protocol does not allow at that point.
	ErrProtocol = errors.New("engine: protocol error")
	// ErrClosed is returned once the session has been closed or the engine
	// has exited.
	ErrClosed = errors.New("engine: session closed")
	// ErrTimeout reports an engine that went silent for longer than allowed.
	ErrTimeout = errors.New("engine: timed out waiting for engine")
)

// Option is a name/value pair passed with setoption.
type Option struct {
	Name  string
	Value string
}

// Config configures a Session.
type Config struct {
	Path            string        // Engine binary (Start only)
	Args            []string      // Engine arguments (Start only)
	Threads         int           // Threads option applied at startup (0 = 4)
	Options         []Option      // Applied after the defaults, in order
	ReplyTimeout    time.Duration // Max wait for a handshake or readyok reply (0 = 10s)
	AnalysisTimeout time.Duration // Max silence while analysing (0 = 5m)
	CloseGrace      time.Duration // Time allowed to exit after quit (0 = 2s)
	Logger          zerolog.Logger
}

// Session is a running engine.
type Session struct {
	cfg Config
	log zerolog.Logger

	cmd    *exec.Cmd // nil for attached pipes
	stdin  io.WriteCloser
	stdout io.Reader

	wmu sync.Mutex
	w   *bufio.Writer

	busy     chan struct{} // held by whoever consumes replies
	lines    chan string
	pumpErr  error // set before lines is closed
	pumpDone chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error

	id      Identity
	options []OptionInfo
}

// Start spawns the engine binary and performs the handshake.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path required")
	}

	cmd := exec.Command(cfg.Path, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Path, err)
	}

	return attach(ctx, cmd, stdout, stdin, cfg)
}

// Attach performs the handshake with an engine that is already connected
// through the given pipes. Close closes stdin, and stdout too when it is an
// io.Closer.
func Attach(ctx context.Context, stdout io.Reader, stdin io.WriteCloser, cfg Config) (*Session, error) {
	return attach(ctx, nil, stdout, stdin, cfg)
}

func attach(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, stdin io.WriteCloser, cfg Config) (*Session, error) {
	if cfg.Threads == 0 {
		cfg.Threads = 4
	}
	if cfg.ReplyTimeout == 0 {
		cfg.ReplyTimeout = 10 * time.Second
	}
	if cfg.AnalysisTimeout == 0 {
		cfg.AnalysisTimeout = 5 * time.Minute
	}
	if cfg.CloseGrace == 0 {
		cfg.CloseGrace = 2 * time.Second
	}

	s := &Session{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "engine").Logger(),
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		w:        bufio.NewWriter(stdin),
		busy:     make(chan struct{}, 1),
		lines:    make(chan string, 1024),
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.pump()

	if err := s.handshake(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("engine handshake: %w", err)
	}
	return s, nil
}

// ID returns the name and author the engine reported.
func (s *Session) ID() Identity { return s.id }

// Options returns the options the engine advertised during the handshake.
func (s *Session) Options() []OptionInfo {
	return append([]OptionInfo(nil), s.options...)
}

// Option looks up an advertised option. UCI option names are case-insensitive.
func (s *Session) Option(name string) (OptionInfo, bool) {
	for _, o := range s.options {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return OptionInfo{}, false
}

// Err returns the error that broke the session, or nil while it is usable.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// fail records err as the session's terminal error (first one wins) and
// returns it.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
		s.log.Warn().Err(err).Msg("engine session broken")
	}
	return err
}

func (s *Session) handshake(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if err := s.send("uci"); err != nil {
		return s.fail(err)
	}

	// Engines may print a banner before speaking UCI; skip until the first
	// id line.
	started := false
	for {
		line, err := s.next(ctx, s.cfg.ReplyTimeout)
		if err != nil {
			return s.fail(fmt.Errorf("waiting for uciok: %w", err))
		}
		if !started {
			i := strings.Index(line, "id ")
			if i < 0 && line != "uciok" {
				s.log.Debug().Str("line", line).Msg("skipping engine preamble")
				continue
			}
			started = true
			if i > 0 {
				line = line[i:]
			}
		}

		if line == "uciok" {
			break
		}
		switch {
		case strings.HasPrefix(line, "id "):
			parseID(line, &s.id)
		case strings.HasPrefix(line, "option "):
			if o, ok := parseOption(line); ok {
				s.options = append(s.options, o)
			}
		default:
			s.log.Debug().Str("line", line).Msg("ignoring handshake line")
		}
	}

	if err := s.ready(ctx); err != nil {
		return err
	}
	for _, o := range s.startupOptions() {
		if err := s.setOption(ctx, o.Name, o.Value); err != nil {
			return err
		}
	}

	s.log.Info().
		Str("name", s.id.Name).
		Str("author", s.id.Author).
		Int("options", len(s.options)).
		Msg("engine ready")
	return nil
}

// startupOptions returns the defaults the engine advertises followed by the
// configured options. When the engine advertised nothing, the defaults are
// sent anyway.
func (s *Session) startupOptions() []Option {
	defaults := []Option{
		{Name: "Threads", Value: strconv.Itoa(s.cfg.Threads)},
		{Name: "UCI_AnalyseMode", Value: "true"},
	}

	var out []Option
	for _, o := range defaults {
		if _, ok := s.Option(o.Name); ok || len(s.options) == 0 {
			out = append(out, o)
		}
	}
	return append(out, s.cfg.Options...)
}

// SetOption sends setoption and waits for the engine to confirm with readyok.
// Any other reply breaks the session.
func (s *Session) SetOption(ctx context.Context, name, value string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.setOption(ctx, name, value)
}

func (s *Session) setOption(ctx context.Context, name, value string) error {
	cmd := "setoption name " + name
	if value != "" {
		cmd += " value " + value
	}
	if err := s.send(cmd); err != nil {
		return s.fail(err)
	}
	if err := s.ready(ctx); err != nil {
		return fmt.Errorf("set option %s: %w", name, err)
	}
	return nil
}

// NewGame tells the engine the next position is from a different game.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if err := s.send("ucinewgame"); err != nil {
		return s.fail(err)
	}
	return s.ready(ctx)
}

// ready performs an isready/readyok round-trip. Engines print "info string"
// notices (network loaded, thread binding) before readyok; those are logged.
// Any other line is a protocol error.
func (s *Session) ready(ctx context.Context) error {
	if err := s.send("isready"); err != nil {
		return s.fail(err)
	}
	for {
		line, err := s.next(ctx, s.cfg.ReplyTimeout)
		if err != nil {
			return s.fail(fmt.Errorf("waiting for readyok: %w", err))
		}
		switch {
		case line == "readyok":
			return nil
		case isInfoString(line):
			s.log.Debug().Str("line", line).Msg("engine info")
		default:
			return s.fail(fmt.Errorf("%w: expected readyok, got %q", ErrProtocol, line))
		}
	}
}

// Analyze sets up the position and starts a depth-limited search. The
// returned stream delivers CandidateLines in emission order followed by one
// BestMove.
func (s *Session) Analyze(ctx context.Context, fen string, depth int) (*Stream, error) {
	if depth < 1 {
		return nil, fmt.Errorf("analyze: depth must be positive, got %d", depth)
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	if err := s.send("position fen " + fen); err != nil {
		s.release()
		return nil, s.fail(err)
	}
	if err := s.send("go depth " + strconv.Itoa(depth)); err != nil {
		s.release()
		return nil, s.fail(err)
	}

	st := newStream()
	go func() {
		defer s.release()
		s.read(ctx, st)
	}()
	return st, nil
}

// Close sends quit, waits up to CloseGrace for the engine to exit and kills
// it otherwise. Every later call on the session returns ErrClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.err == nil {
			s.err = ErrClosed
		}
		s.mu.Unlock()

		_ = s.send("quit")
		_ = s.stdin.Close()
		close(s.done)

		s.closeErr = s.wait()
		if c, ok := s.stdout.(io.Closer); ok {
			_ = c.Close()
		}

		select {
		case <-s.pumpDone:
		case <-time.After(s.cfg.CloseGrace):
			s.log.Warn().Msg("engine output reader did not exit")
		}
		s.log.Debug().Msg("engine closed")
	})
	return s.closeErr
}

func (s *Session) wait() error {
	if s.cmd == nil {
		return nil
	}

	exited := make(chan error, 1)
	go func() { exited <- s.cmd.Wait() }()

	select {
	case err := <-exited:
		if err != nil {
			s.log.Debug().Err(err).Msg("engine exit status")
		}
		return nil
	case <-time.After(s.cfg.CloseGrace):
	}

	s.log.Warn().Dur("grace", s.cfg.CloseGrace).Msg("engine ignored quit, killing")
	if err := s.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill engine: %w", err)
	}
	<-exited
	return nil
}

// acquire takes the right to consume engine replies.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.busy <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	if err := s.Err(); err != nil {
		<-s.busy
		return err
	}
	return nil
}

func (s *Session) release() { <-s.busy }

func (s *Session) send(cmd string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.log.Debug().Str("cmd", cmd).Msg("send")
	if _, err := s.w.WriteString(cmd + "\n"); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// next returns the next engine line. A zero timeout waits indefinitely.
func (s *Session) next(ctx context.Context, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case line, ok := <-s.lines:
		if !ok {
			if s.pumpErr != nil {
				return "", fmt.Errorf("%w: read engine output: %v", ErrClosed, s.pumpErr)
			}
			return "", fmt.Errorf("%w: engine output ended", ErrClosed)
		}
		return line, nil
	case <-expired:
		return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	}
}

// pump copies engine output into s.lines until EOF or Close.
func (s *Session) pump() {
	defer close(s.pumpDone)
	defer close(s.lines)

	sc := bufio.NewScanner(s.stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s.log.Trace().Str("line", line).Msg("recv")
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	s.pumpErr = sc.Err()
}

func isInfoString(line string) bool {
	return line == "info string" || strings.HasPrefix(line, "info string ")
}
