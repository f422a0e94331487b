package tts

import "sync"

// ProgressFunc receives the provider's completion percentage once per poll.
// Values may repeat between polls.
type ProgressFunc func(percent int)

// ProgressStream turns progress reports into a channel that only ever holds
// the most recent value, so a slow consumer never stalls the poll loop.
// Report must be called from a single goroutine and not after Close.
type ProgressStream struct {
	ch   chan int
	once sync.Once
}

func NewProgressStream() *ProgressStream {
	return &ProgressStream{ch: make(chan int, 1)}
}

// Report is a ProgressFunc.
func (s *ProgressStream) Report(percent int) {
	select {
	case s.ch <- percent:
		return
	default:
	}

	// Buffer holds a stale value; replace it.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- percent:
	default:
	}
}

// Updates is closed by Close.
func (s *ProgressStream) Updates() <-chan int {
	return s.ch
}

func (s *ProgressStream) Close() {
	s.once.Do(func() { close(s.ch) })
}
