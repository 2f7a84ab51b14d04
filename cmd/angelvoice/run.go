package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"angelvoice/internal/bootstrap"
	"angelvoice/internal/domain"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen for the wake word and forward commands to the backend",
		Long: `Run starts the coordinator headless. With the stdin recognizer, each line
on standard input is one final recognition result; JSON lines carry confidence,
alternatives and interim flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			services, err := bootstrap.Build(bootstrap.Options{
				ConfigPath: opts.configPath,
				Stdin:      cmd.InOrStdin(),
			})
			if err != nil {
				return err
			}
			return serve(ctx, services)
		},
	}
}

func serve(ctx context.Context, services *bootstrap.Services) error {
	unsubscribe := services.Coordinator.Subscribe(logSink{log: services.Logger})
	defer unsubscribe()
	services.WatchConfig()

	if err := services.Start(ctx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = services.Close(closeCtx)
		return err
	}
	services.Logger.Info().Str("sessionId", services.Coordinator.SessionID()).Msg("listening")

	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return services.Close(closeCtx)
}

// logSink reports coordinator events on the structured log.
type logSink struct {
	log zerolog.Logger
}

func (s logSink) StateChanged(state domain.CoordinatorState, mode domain.ListeningMode, reason domain.StateReason) {
	s.log.Info().Str("state", string(state)).Str("mode", string(mode)).Str("reason", string(reason)).Msg("state changed")
}

func (s logSink) WakeWordDetected(detection domain.WakeWordDetection) {
	s.log.Info().Str("word", detection.Word).Float64("confidence", detection.Confidence).Msg("wake word")
}

func (s logSink) WakeWordConfirmed() {
	s.log.Info().Msg("wake word confirmed by backend")
}

func (s logSink) CommandReceived(command domain.Command) {
	s.log.Info().Str("raw", command.Raw).Str("text", command.Text).Msg("command")
}

func (s logSink) SpeechError(code domain.ErrorCode, detail string) {
	s.log.Error().Str("code", string(code)).Str("detail", detail).Msg("speech error")
}

func (s logSink) PartialTranscript(text string) {
	s.log.Debug().Str("text", text).Msg("partial")
}

func (s logSink) AIResponse(text string) {
	s.log.Info().Str("response", text).Msg("assistant response")
}

func (s logSink) SystemCommand(command domain.SystemCommand) {
	s.log.Info().Str("command", string(command)).Msg("system command")
}

func (s logSink) DormancyChanged(dormant bool) {
	s.log.Info().Bool("dormant", dormant).Msg("dormancy changed")
}
