// Package bootstrap assembles the runtime graph from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"angelvoice/internal/clock"
	"angelvoice/internal/config"
	"angelvoice/internal/domain"
	"angelvoice/internal/logging"
	"angelvoice/internal/metrics"
	"angelvoice/internal/ports"
	"angelvoice/internal/recognizer"
	"angelvoice/internal/rules"
	"angelvoice/internal/transport/wsconn"
	"angelvoice/internal/usecase"
)

// Options override parts of the graph. Zero values select the production
// implementation.
type Options struct {
	ConfigPath string
	Stdin      io.Reader
	Scheduler  clock.Scheduler
	Dialer     ports.TransportDialer
	Recognizer ports.Recognizer
	// SkipLogging leaves the global logger untouched.
	SkipLogging bool
}

// Services is the assembled runtime graph.
type Services struct {
	Coordinator   *usecase.Coordinator
	Config        *config.Config
	Loader        *config.Loader
	Metrics       *metrics.Metrics
	Registry      *prometheus.Registry
	MetricsServer *metrics.Server
	Logger        zerolog.Logger
}

// Build wires all dependencies for the current runtime.
func Build(opts Options) (*Services, error) {
	loader := config.NewLoader(opts.ConfigPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.WithComponent("angelvoice")
	if !opts.SkipLogging {
		logger = logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}

	ruleSet, err := rules.Load(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return nil, err
	}

	rec := opts.Recognizer
	if rec == nil {
		stdin := opts.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		rec, err = NewRecognizer(cfg.Recognizer, stdin, logger)
		if err != nil {
			return nil, err
		}
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = wsconn.NewDialer(wsconn.Config{
			HandshakeTimeout: cfg.Backend.ConnectTimeout,
			Logger:           logger,
		})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	telemetry := metrics.New(registry)

	coordinator := usecase.NewCoordinator(
		rec,
		dialer,
		ruleSet,
		opts.Scheduler,
		telemetry,
		logger,
		withRuleVariants(CoordinatorConfig(cfg), ruleSet),
	)

	services := &Services{
		Coordinator: coordinator,
		Config:      cfg,
		Loader:      loader,
		Metrics:     telemetry,
		Registry:    registry,
		Logger:      logger,
	}
	if cfg.Metrics.Enabled {
		services.MetricsServer = metrics.NewServer(cfg.Metrics.Addr, registry, logger)
		services.MetricsServer.SetReady(func() bool {
			return coordinator.Status().IsConnected
		})
	}

	logger.Info().
		Str("configFile", loader.ConfigFile()).
		Str("recognizer", cfg.Recognizer.Mode).
		Int("rules", ruleSet.Len()).
		Int("ruleVariants", len(ruleSet.Variants())).
		Msg("services assembled")
	return services, nil
}

// CoordinatorConfig maps file configuration onto the coordinator.
func CoordinatorConfig(cfg *config.Config) usecase.Config {
	return usecase.Config{
		BackendURL:           cfg.Backend.URL,
		ConnectTimeout:       cfg.Backend.ConnectTimeout,
		ReconnectBaseDelay:   cfg.Backend.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.Backend.MaxReconnectAttempts,
		KeepAliveInterval:    cfg.Backend.KeepAliveInterval,
		CommandReturnDelay:   cfg.Timing.CommandReturnDelay,
		ResponseReturnDelay:  cfg.Timing.ResponseReturnDelay,
		InactivityTimeout:    cfg.Timing.InactivityTimeout,

		RecognitionRestartDelay: cfg.Timing.RecognitionRestartDelay,
		MaxRecognitionRestarts:  cfg.Timing.MaxRecognitionRestarts,
		Voice:                VoiceSession(cfg.Voice),
		Variants:             cfg.Voice.Variants,
		Heuristics:           cfg.Heuristics,
	}
}

// withRuleVariants adds the wake word spellings declared in the rules file.
func withRuleVariants(cfg usecase.Config, set *rules.Set) usecase.Config {
	extra := set.Variants()
	if len(extra) == 0 {
		return cfg
	}
	cfg.Variants = append(append([]string(nil), cfg.Variants...), extra...)
	return cfg
}

func VoiceSession(voice config.VoiceConfig) domain.VoiceSessionConfig {
	return domain.VoiceSessionConfig{
		WakeWord:            voice.WakeWord,
		Language:            voice.Language,
		ConfidenceThreshold: voice.ConfidenceThreshold,
		Continuous:          voice.Continuous,
	}
}

// NewRecognizer builds the recognizer selected by cfg.Mode.
func NewRecognizer(cfg config.RecognizerConfig, stdin io.Reader, logger zerolog.Logger) (ports.Recognizer, error) {
	switch cfg.Mode {
	case config.RecognizerStdin, "":
		return recognizer.NewLineRecognizer(stdin, logger), nil
	case config.RecognizerProcess:
		return recognizer.NewProcessRecognizer(cfg.Command, cfg.Args, logger), nil
	default:
		return nil, fmt.Errorf("unsupported recognizer mode %q", cfg.Mode)
	}
}

// WatchConfig pushes edits of the voice section to the running coordinator.
func (s *Services) WatchConfig() {
	current := VoiceSession(s.Config.Voice)
	s.Loader.Watch(func(cfg *config.Config, err error) {
		if err != nil {
			s.Logger.Warn().Err(err).Msg("ignoring invalid config change")
			return
		}
		next := VoiceSession(cfg.Voice)
		if next == current {
			return
		}
		current = next
		if err := s.Coordinator.ApplyConfig(next); err != nil {
			s.Logger.Warn().Err(err).Msg("failed to apply config change")
		}
	})
}

// Start begins listening and serves metrics when enabled.
func (s *Services) Start(ctx context.Context) error {
	if s.MetricsServer != nil {
		if err := s.MetricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}
	return s.Coordinator.Start(ctx)
}

// Close disposes the coordinator and stops the metrics server.
func (s *Services) Close(ctx context.Context) error {
	s.Coordinator.Dispose()
	if s.MetricsServer != nil {
		return s.MetricsServer.Shutdown(ctx)
	}
	return nil
}
