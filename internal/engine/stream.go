package engine

import (
	"context"
	"sync"
)

// Stream is the incremental output of one Analyze call.
//
//	for msg := range stream.Messages {
//		...
//	}
//	if err := stream.Err(); err != nil {
//		...
//	}
//
// A consumer that loses interest calls Stop (or cancels the context passed
// to Analyze). The engine is then told to stop and the rest of its output is
// drained without being delivered, so Messages may close without a BestMove.
type Stream struct {
	Messages <-chan Analysis

	msgs     chan Analysis
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

func newStream() *Stream {
	msgs := make(chan Analysis)
	return &Stream{
		Messages: msgs,
		msgs:     msgs,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Stop abandons the stream. It does not block and may be called repeatedly.
func (st *Stream) Stop() {
	st.stopOnce.Do(func() { close(st.stop) })
}

// Done is closed once the reader has finished with the engine's output.
func (st *Stream) Done() <-chan struct{} { return st.done }

// Err blocks until the reader has finished and returns what ended the stream
// early: a protocol or pipe failure, or the context error when the context
// was cancelled. It is nil for a stream that ended with its BestMove or was
// abandoned with Stop.
func (st *Stream) Err() error {
	<-st.done
	return st.err
}

// gone reports, without blocking, whether the consumer has stopped or its
// context is done. Checked before each delivery so a consumer still ranging
// after Stop sees at most one more message.
func (st *Stream) gone(ctx context.Context) bool {
	select {
	case <-st.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (st *Stream) finish(err error) {
	st.err = err
	close(st.done)
	close(st.msgs)
}

// read delivers analysis lines until bestmove. Once the consumer is gone it
// sends stop exactly once and keeps reading to bestmove so the next command
// starts from a quiet engine.
func (s *Session) read(ctx context.Context, st *Stream) {
	var (
		err       error
		abandoned bool
		delivered int
	)
	defer func() {
		s.log.Debug().
			Int("delivered", delivered).
			Bool("abandoned", abandoned).
			AnErr("err", err).
			Msg("analysis finished")
		st.finish(err)
	}()

	for {
		line, rerr := s.next(context.Background(), s.cfg.AnalysisTimeout)
		if rerr != nil {
			err = s.fail(rerr)
			return
		}
		msg, perr := parseAnalysis(line)
		if perr != nil {
			err = s.fail(perr)
			return
		}
		_, last := msg.(BestMove)

		if !abandoned {
			abandoned = st.gone(ctx)
			if !abandoned {
				select {
				case st.msgs <- msg:
					delivered++
				case <-st.stop:
					abandoned = true
				case <-ctx.Done():
					abandoned = true
				case <-s.done:
					err = ErrClosed
					return
				}
			}
			if abandoned {
				err = ctx.Err()
				if !last {
					if serr := s.send("stop"); serr != nil {
						err = s.fail(serr)
						return
					}
				}
			}
		}
		if last {
			return
		}
	}
}
