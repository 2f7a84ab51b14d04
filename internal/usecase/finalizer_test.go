package usecase

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"angelvoice/internal/domain"
)

func TestCommandFinalizerRulesFailureKeepsRaw(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	observers := newObserverSet()
	observers.add(events)
	f := newCommandFinalizer(&fakeRules{err: errors.New("rules")}, observers, zerolog.Nop())

	command := f.Finalize("ouvre la porte", 0.8)
	if command.Text != "ouvre la porte" || command.Raw != "ouvre la porte" {
		t.Fatalf("expected raw command, got %+v", command)
	}
	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeRules {
		t.Fatalf("expected rules error event, got %+v", errs)
	}
}

func TestCommandFinalizerRewrites(t *testing.T) {
	t.Parallel()

	f := newCommandFinalizer(&fakeRules{transform: "  open the door "}, newObserverSet(), zerolog.Nop())

	command := f.Finalize("ouvre la porte", 0.6)
	if command.Text != "open the door" {
		t.Fatalf("unexpected text: %q", command.Text)
	}
	if command.Raw != "ouvre la porte" || command.Confidence != 0.6 {
		t.Fatalf("unexpected command: %+v", command)
	}
}

func TestCommandFinalizerWithoutRules(t *testing.T) {
	t.Parallel()

	f := newCommandFinalizer(nil, newObserverSet(), zerolog.Nop())
	if command := f.Finalize("bonjour", 0.5); command.Text != "bonjour" {
		t.Fatalf("unexpected command: %+v", command)
	}
}

func TestCommandFinalizerBlankRewriteKeepsRaw(t *testing.T) {
	t.Parallel()

	f := newCommandFinalizer(&fakeRules{transform: "   "}, newObserverSet(), zerolog.Nop())
	if command := f.Finalize("bonjour", 0.5); command.Text != "bonjour" {
		t.Fatalf("unexpected command: %+v", command)
	}
}

func TestCommandFinalizerResolvesControlPhrase(t *testing.T) {
	t.Parallel()

	rules := &fakeRules{ui: map[string]domain.SystemCommand{"cache les contrôles": domain.SystemHideControls}}
	f := newCommandFinalizer(rules, newObserverSet(), zerolog.Nop())

	if command := f.Finalize("cache les contrôles", 0.7); command.UICommand != domain.SystemHideControls {
		t.Fatalf("expected hide controls, got %+v", command)
	}
	if command := f.Finalize("bonjour", 0.7); command.UICommand != "" {
		t.Fatalf("unexpected control command: %+v", command)
	}
}
