package recognizer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"angelvoice/internal/domain"
	"angelvoice/internal/ports"
)

// LineRecognizer reads engine lines from a long-lived reader such as stdin.
// Lines that arrive while stopped are discarded.
type LineRecognizer struct {
	in  io.Reader
	log zerolog.Logger

	mu       sync.Mutex
	handler  ports.RecognitionHandler
	cfg      domain.VoiceSessionConfig
	active   bool
	finished bool

	readOnce sync.Once
	done     chan struct{}
}

func NewLineRecognizer(in io.Reader, logger zerolog.Logger) *LineRecognizer {
	return &LineRecognizer{
		in:   in,
		log:  logger.With().Str("component", "line_recognizer").Logger(),
		done: make(chan struct{}),
	}
}

func (r *LineRecognizer) SetHandler(handler ports.RecognitionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
}

func (r *LineRecognizer) Start(_ context.Context) error {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return errors.New("recognizer input is exhausted")
	}
	if r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = true
	handler := r.handler
	r.mu.Unlock()

	r.readOnce.Do(func() { go r.scan() })
	if handler != nil {
		handler.OnListeningStarted()
	}
	return nil
}

func (r *LineRecognizer) Stop() error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = false
	handler := r.handler
	r.mu.Unlock()

	if handler != nil {
		handler.OnListeningStopped()
	}
	return nil
}

func (r *LineRecognizer) UpdateConfig(cfg domain.VoiceSessionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	return nil
}

// Config returns the last pushed session config.
func (r *LineRecognizer) Config() domain.VoiceSessionConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Done is closed once the input reaches EOF.
func (r *LineRecognizer) Done() <-chan struct{} {
	return r.done
}

func (r *LineRecognizer) scan() {
	defer close(r.done)

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		r.mu.Lock()
		active, handler := r.active, r.handler
		r.mu.Unlock()
		if !active {
			continue
		}
		dispatchLine(handler, scanner.Text())
	}

	err := scanner.Err()
	r.mu.Lock()
	r.finished = true
	wasActive := r.active
	r.active = false
	handler := r.handler
	r.mu.Unlock()

	if err != nil {
		r.log.Warn().Err(err).Msg("recognizer input failed")
	} else {
		r.log.Info().Msg("recognizer input closed")
	}
	if wasActive && handler != nil {
		handler.OnError(domain.RecognitionAborted)
		handler.OnListeningStopped()
	}
}
