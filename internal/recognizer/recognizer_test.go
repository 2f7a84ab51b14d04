package recognizer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"angelvoice/internal/domain"
)

func TestDispatchLine(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	dispatchLine(h, "  Angel allume la lumière ")
	dispatchLine(h, `{"transcript":"angèle","confidence":0.6,"alternatives":[{"transcript":"ange","confidence":0.3}],"resultIndex":2}`)
	dispatchLine(h, `{"transcript":"ang","isFinal":false}`)
	dispatchLine(h, `{"error":"no-speech"}`)
	dispatchLine(h, `{broken`)
	dispatchLine(h, "   ")

	finals := h.snapshotFinals()
	if len(finals) != 3 {
		t.Fatalf("expected 3 finals, got %+v", finals)
	}
	if finals[0].Transcript != "Angel allume la lumière" || finals[0].RawConfidence != 0 || !finals[0].IsFinal {
		t.Fatalf("unexpected plain result: %+v", finals[0])
	}
	full := finals[1]
	if full.Transcript != "angèle" || full.RawConfidence != 0.6 || full.ResultIndex != 2 {
		t.Fatalf("unexpected json result: %+v", full)
	}
	if len(full.Alternatives) != 2 || full.Alternatives[0].Transcript != "angèle" || full.Alternatives[1].Transcript != "ange" {
		t.Fatalf("unexpected alternatives: %+v", full.Alternatives)
	}
	if finals[2].Transcript != "{broken" {
		t.Fatalf("malformed json should pass through as text: %+v", finals[2])
	}
	if interims := h.snapshotInterims(); len(interims) != 1 || interims[0] != "ang" {
		t.Fatalf("unexpected interims: %v", interims)
	}
	if errs := h.snapshotErrors(); len(errs) != 1 || errs[0] != domain.RecognitionNoSpeech {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestLineRecognizerDeliversOnlyWhileActive(t *testing.T) {
	t.Parallel()

	reader, writer := io.Pipe()
	r := NewLineRecognizer(reader, zerolog.Nop())
	h := &recordingHandler{}
	r.SetHandler(h)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	writeLine(t, writer, "angel")
	waitFor(t, "first final", func() bool { return len(h.snapshotFinals()) == 1 })

	if err := r.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	writeLine(t, writer, "ignored")
	// The blank line only returns once the scanner has finished with "ignored".
	writeLine(t, writer, "")

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	writeLine(t, writer, "bonjour")
	waitFor(t, "second final", func() bool { return len(h.snapshotFinals()) == 2 })

	finals := h.snapshotFinals()
	if finals[1].Transcript != "bonjour" {
		t.Fatalf("line read while stopped leaked: %+v", finals)
	}
	if h.startedCount() != 2 || h.stoppedCount() != 1 {
		t.Fatalf("unexpected listening transitions: started=%d stopped=%d", h.startedCount(), h.stoppedCount())
	}

	if err := r.UpdateConfig(domain.VoiceSessionConfig{WakeWord: "Computer"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if r.Config().WakeWord != "Computer" {
		t.Fatalf("config not stored")
	}

	_ = writer.Close()
	<-r.Done()

	if errs := h.snapshotErrors(); len(errs) != 1 || errs[0] != domain.RecognitionAborted {
		t.Fatalf("expected aborted error at EOF, got %v", errs)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail after EOF")
	}
}

func TestProcessRecognizerStreamsEngineOutput(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "engine.sh", "#!/usr/bin/env bash\n"+
		"echo \"$1 $2\"\n"+
		"echo '{\"transcript\":\"ang\",\"isFinal\":false}'\n"+
		"echo '{\"error\":\"no-speech\"}'\n"+
		"exec sleep 5\n")

	r := NewProcessRecognizer(script, []string{"{language}", "{wake_word}"}, zerolog.Nop())
	h := &recordingHandler{}
	r.SetHandler(h)
	_ = r.UpdateConfig(domain.VoiceSessionConfig{WakeWord: "Angel", Language: "fr-FR"})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, "engine output", func() bool { return len(h.snapshotErrors()) == 1 })

	finals := h.snapshotFinals()
	if len(finals) != 1 || finals[0].Transcript != "fr-FR Angel" {
		t.Fatalf("unexpected finals: %+v", finals)
	}
	if interims := h.snapshotInterims(); len(interims) != 1 {
		t.Fatalf("expected interim result, got %v", interims)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if h.startedCount() != 1 || h.stoppedCount() != 1 {
		t.Fatalf("unexpected listening transitions: started=%d stopped=%d", h.startedCount(), h.stoppedCount())
	}
	if errs := h.snapshotErrors(); len(errs) != 1 {
		t.Fatalf("requested stop must not report an error, got %v", errs)
	}
}

func TestProcessRecognizerReportsUnexpectedExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "crash.sh", "#!/usr/bin/env bash\necho angel\necho 'device lost' 1>&2\nexit 3\n")
	r := NewProcessRecognizer(script, nil, zerolog.Nop())
	h := &recordingHandler{}
	r.SetHandler(h)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, "exit report", func() bool { return h.stoppedCount() == 1 })

	if errs := h.snapshotErrors(); len(errs) != 1 || errs[0] != domain.RecognitionNetwork {
		t.Fatalf("expected network error, got %v", errs)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart after exit failed: %v", err)
	}
	waitFor(t, "second run", func() bool { return h.stoppedCount() == 2 })
	if h.startedCount() != 2 {
		t.Fatalf("expected engine to be relaunched")
	}
}

func TestProcessRecognizerPermissionDenied(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "denied.sh", "#!/usr/bin/env bash\necho 'error: not-allowed' 1>&2\necho 'not-allowed again' 1>&2\nexit 1\n")
	r := NewProcessRecognizer(script, nil, zerolog.Nop())
	h := &recordingHandler{}
	r.SetHandler(h)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, "exit", func() bool { return h.stoppedCount() == 1 })

	errs := h.snapshotErrors()
	if len(errs) != 1 || errs[0] != domain.RecognitionNotAllowed {
		t.Fatalf("expected a single not-allowed error, got %v", errs)
	}
}

func TestProcessRecognizerMissingCommand(t *testing.T) {
	t.Parallel()

	r := NewProcessRecognizer(filepath.Join(t.TempDir(), "missing-engine"), nil, zerolog.Nop())
	if err := r.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if err := NewProcessRecognizer("", nil, zerolog.Nop()).Start(context.Background()); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestExpandArgs(t *testing.T) {
	t.Parallel()

	got := expandArgs(
		[]string{"--lang={language}", "--continuous", "{continuous}", "--hint", "{wake_word}"},
		domain.VoiceSessionConfig{WakeWord: "Angel", Language: "fr-FR", Continuous: true},
	)
	want := []string{"--lang=fr-FR", "--continuous", "true", "--hint", "Angel"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected args: %v", got)
		}
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func writeLine(t *testing.T, w io.Writer, line string) {
	t.Helper()
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type recordingHandler struct {
	mu       sync.Mutex
	finals   []domain.RecognitionResult
	interims []string
	errors   []string
	started  int
	stopped  int
}

func (h *recordingHandler) OnFinalResult(result domain.RecognitionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finals = append(h.finals, result)
}

func (h *recordingHandler) OnInterimResult(transcript string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interims = append(h.interims, transcript)
}

func (h *recordingHandler) OnError(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, code)
}

func (h *recordingHandler) OnListeningStarted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started++
}

func (h *recordingHandler) OnListeningStopped() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped++
}

func (h *recordingHandler) snapshotFinals() []domain.RecognitionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.RecognitionResult(nil), h.finals...)
}

func (h *recordingHandler) snapshotInterims() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.interims...)
}

func (h *recordingHandler) snapshotErrors() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.errors...)
}

func (h *recordingHandler) startedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func (h *recordingHandler) stoppedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}
