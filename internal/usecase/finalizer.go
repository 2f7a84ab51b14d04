package usecase

import (
	"strings"

	"github.com/rs/zerolog"

	"angelvoice/internal/domain"
	"angelvoice/internal/ports"
)

type commandFinalizer struct {
	rules  ports.RulesEngine
	events *observerSet
	log    zerolog.Logger
}

func newCommandFinalizer(rules ports.RulesEngine, events *observerSet, log zerolog.Logger) commandFinalizer {
	return commandFinalizer{rules: rules, events: events, log: log}
}

// Finalize rewrites a captured command and resolves any spoken control
// phrase. A rules failure is reported and the raw command is kept.
func (f commandFinalizer) Finalize(raw string, confidence float64) domain.Command {
	command := domain.Command{Raw: raw, Text: raw, Confidence: confidence}
	if f.rules == nil {
		return command
	}
	if ui, ok := f.rules.UICommand(raw); ok {
		command.UICommand = ui
	}

	transformed, err := f.rules.Apply(raw)
	if err != nil {
		f.log.Warn().Err(err).Str("command", raw).Msg("command rules failed; sending raw command")
		f.events.each(func(sink ports.EventSink) {
			sink.SpeechError(domain.ErrorCodeRules, err.Error())
		})
		return command
	}
	if transformed = strings.TrimSpace(transformed); transformed != "" {
		command.Text = transformed
	}
	return command
}
