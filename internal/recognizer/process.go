package recognizer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"angelvoice/internal/domain"
	"angelvoice/internal/ports"
)

const stopGrace = 1200 * time.Millisecond

// ProcessRecognizer runs an external speech engine and reads its stdout as
// engine lines. Arguments may use {language}, {wake_word} and {continuous},
// which are filled from the current session config on every Start.
type ProcessRecognizer struct {
	command string
	args    []string
	log     zerolog.Logger

	mu      sync.Mutex
	handler ports.RecognitionHandler
	cfg     domain.VoiceSessionConfig
	session *engineSession
}

func NewProcessRecognizer(command string, args []string, logger zerolog.Logger) *ProcessRecognizer {
	return &ProcessRecognizer{
		command: command,
		args:    append([]string(nil), args...),
		log:     logger.With().Str("component", "process_recognizer").Str("command", command).Logger(),
	}
}

func (r *ProcessRecognizer) SetHandler(handler ports.RecognitionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
}

func (r *ProcessRecognizer) UpdateConfig(cfg domain.VoiceSessionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	return nil
}

// Start launches the engine. It is a no-op while an engine is running.
func (r *ProcessRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return nil
	}
	if strings.TrimSpace(r.command) == "" {
		return errors.New("recognizer command is not configured")
	}

	cmd := exec.CommandContext(ctx, r.command, expandArgs(r.args, r.cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create engine stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create engine stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start speech engine: %w", err)
	}

	s := &engineSession{
		owner:   r,
		process: cmd.Process,
		waitErr: make(chan error, 1),
	}
	r.session = s
	r.log.Info().Int("pid", cmd.Process.Pid).Msg("speech engine started")

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		s.readStdout(stdout)
	}()
	go func() {
		defer pipes.Done()
		s.readStderr(stderr)
	}()
	go func() {
		pipes.Wait()
		s.waitErr <- cmd.Wait()
		close(s.waitErr)
		s.exited()
	}()

	if handler := r.handler; handler != nil {
		handler.OnListeningStarted()
	}
	return nil
}

// Stop interrupts the engine and kills it if it does not exit in time.
func (r *ProcessRecognizer) Stop() error {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.stop()
}

func (r *ProcessRecognizer) currentHandler() ports.RecognitionHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

type engineSession struct {
	owner   *ProcessRecognizer
	process *os.Process
	waitErr chan error

	mu       sync.Mutex
	stopping bool
	denied   bool
	lastErr  string

	stopOnce sync.Once
	stopErr  error
}

func (s *engineSession) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopping
}

func (s *engineSession) readStdout(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		if !s.active() {
			continue
		}
		dispatchLine(s.owner.currentHandler(), scanner.Text())
	}
}

func (s *engineSession) readStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.owner.log.Debug().Str("stderr", line).Msg("speech engine output")

		s.mu.Lock()
		s.lastErr = line
		report := !s.stopping && !s.denied && strings.Contains(line, domain.RecognitionNotAllowed)
		if report {
			s.denied = true
		}
		s.mu.Unlock()

		if report {
			if handler := s.owner.currentHandler(); handler != nil {
				handler.OnError(domain.RecognitionNotAllowed)
			}
		}
	}
}

// exited reports an engine exit that nobody asked for.
func (s *engineSession) exited() {
	s.mu.Lock()
	unexpected := !s.stopping
	s.stopping = true
	denied := s.denied
	lastErr := s.lastErr
	s.mu.Unlock()

	owner := s.owner
	owner.mu.Lock()
	if owner.session == s {
		owner.session = nil
	}
	owner.mu.Unlock()

	if !unexpected {
		return
	}
	owner.log.Warn().Str("stderr", lastErr).Msg("speech engine exited")
	handler := owner.currentHandler()
	if handler == nil {
		return
	}
	if !denied {
		handler.OnError(domain.RecognitionNetwork)
	}
	handler.OnListeningStopped()
}

func (s *engineSession) stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		alreadyExited := s.stopping
		s.stopping = true
		s.mu.Unlock()

		if !alreadyExited && s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if !alreadyExited {
			if handler := s.owner.currentHandler(); handler != nil {
				handler.OnListeningStopped()
			}
		}
	})
	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func expandArgs(args []string, cfg domain.VoiceSessionConfig) []string {
	replacer := strings.NewReplacer(
		"{language}", cfg.Language,
		"{wake_word}", cfg.WakeWord,
		"{continuous}", strconv.FormatBool(cfg.Continuous),
	)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = replacer.Replace(arg)
	}
	return out
}
