// Package config loads angelvoice settings from YAML files and ANGELVOICE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"angelvoice/internal/wakeword"
)

const (
	envPrefix  = "ANGELVOICE"
	configName = "angelvoice"
	configDir  = ".angelvoice"

	RecognizerStdin   = "stdin"
	RecognizerProcess = "process"
)

// Config stores runtime configuration.
type Config struct {
	Backend    BackendConfig       `mapstructure:"backend"`
	Voice      VoiceConfig         `mapstructure:"voice"`
	Timing     TimingConfig        `mapstructure:"timing"`
	Heuristics wakeword.Heuristics `mapstructure:"heuristics"`
	Recognizer RecognizerConfig    `mapstructure:"recognizer"`
	Rules      RulesConfig         `mapstructure:"rules"`
	Logging    LoggingConfig       `mapstructure:"logging"`
	Metrics    MetricsConfig       `mapstructure:"metrics"`
	UI         UIConfig            `mapstructure:"ui"`
}

type BackendConfig struct {
	URL                  string        `mapstructure:"url"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	KeepAliveInterval    time.Duration `mapstructure:"keep_alive_interval"`
}

type VoiceConfig struct {
	WakeWord            string   `mapstructure:"wake_word"`
	Language            string   `mapstructure:"language"`
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold"`
	Continuous          bool     `mapstructure:"continuous"`
	Variants            []string `mapstructure:"variants"`
}

type TimingConfig struct {
	CommandReturnDelay  time.Duration `mapstructure:"command_return_delay"`
	ResponseReturnDelay time.Duration `mapstructure:"response_return_delay"`
	// InactivityTimeout of zero disables dormancy.
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`

	RecognitionRestartDelay time.Duration `mapstructure:"recognition_restart_delay"`
	MaxRecognitionRestarts  int           `mapstructure:"max_recognition_restarts"`
}

type RecognizerConfig struct {
	Mode    string   `mapstructure:"mode"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

type RulesConfig struct {
	Path           string `mapstructure:"path"`
	IterationLimit int    `mapstructure:"iteration_limit"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type UIConfig struct {
	AssetsDir string `mapstructure:"assets_dir"`
}

// DefaultConfig returns the configuration used when no file or env override is present.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:                  "ws://localhost:8080/ws/voice",
			ConnectTimeout:       5 * time.Second,
			ReconnectBaseDelay:   5 * time.Second,
			MaxReconnectAttempts: 10,
			KeepAliveInterval:    30 * time.Second,
		},
		Voice: VoiceConfig{
			WakeWord:            "Angel",
			Language:            "fr-FR",
			ConfidenceThreshold: 0.7,
			Continuous:          true,
		},
		Timing: TimingConfig{
			CommandReturnDelay:  time.Second,
			ResponseReturnDelay: 3 * time.Second,
			InactivityTimeout:   5 * time.Minute,

			RecognitionRestartDelay: time.Second,
			MaxRecognitionRestarts:  3,
		},
		Heuristics: wakeword.DefaultHeuristics(),
		Recognizer: RecognizerConfig{
			Mode: RecognizerStdin,
		},
		Rules: RulesConfig{
			IterationLimit: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
		UI: UIConfig{
			AssetsDir: "frontend/dist",
		},
	}
}

// Validate reports every setting that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Backend.URL) == "" {
		errs = append(errs, errors.New("backend.url is required"))
	}
	if c.Backend.ConnectTimeout <= 0 || c.Backend.ReconnectBaseDelay <= 0 || c.Backend.KeepAliveInterval <= 0 {
		errs = append(errs, errors.New("backend delays must be positive"))
	}
	if c.Backend.MaxReconnectAttempts <= 0 {
		errs = append(errs, errors.New("backend.max_reconnect_attempts must be positive"))
	}
	if strings.TrimSpace(c.Voice.WakeWord) == "" {
		errs = append(errs, errors.New("voice.wake_word is required"))
	}
	if c.Voice.ConfidenceThreshold < 0 || c.Voice.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("voice.confidence_threshold %v is outside [0,1]", c.Voice.ConfidenceThreshold))
	}
	if c.Timing.CommandReturnDelay <= 0 || c.Timing.ResponseReturnDelay <= 0 {
		errs = append(errs, errors.New("timing return delays must be positive"))
	}
	if c.Timing.InactivityTimeout < 0 {
		errs = append(errs, errors.New("timing.inactivity_timeout must not be negative"))
	}
	if c.Timing.RecognitionRestartDelay <= 0 || c.Timing.MaxRecognitionRestarts <= 0 {
		errs = append(errs, errors.New("timing recognition restart settings must be positive"))
	}
	switch c.Recognizer.Mode {
	case RecognizerStdin:
	case RecognizerProcess:
		if strings.TrimSpace(c.Recognizer.Command) == "" {
			errs = append(errs, errors.New("recognizer.command is required in process mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported recognizer.mode %q", c.Recognizer.Mode))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unsupported logging.format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Loader owns one viper instance so the same source can be watched after loading.
type Loader struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// NewLoader reads path when set, otherwise angelvoice.yaml from $HOME/.angelvoice or the working directory.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, configDir))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, path: path}
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || l.path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

// ConfigFile returns the file in use, or "" when running on defaults.
func (l *Loader) ConfigFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.ConfigFileUsed()
}

// Watch calls fn with the reloaded configuration each time the config file
// changes. It is a no-op when no file was loaded.
func (l *Loader) Watch(fn func(*Config, error)) {
	if l.ConfigFile() == "" {
		return
	}
	l.v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		fn(cfg, err)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Rules.Path == "" {
		cfg.Rules.Path = defaultRulesPath()
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	cfg.Recognizer.Mode = strings.ToLower(strings.TrimSpace(cfg.Recognizer.Mode))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode renders cfg as YAML using the same keys Load accepts.
func Encode(cfg *Config) ([]byte, error) {
	v := viper.New()
	setDefaults(v, cfg)
	return yaml.Marshal(humanize(v.AllSettings()))
}

func setDefaults(v *viper.Viper, cfg *Config) {
	values := map[string]any{
		"backend.url":                    cfg.Backend.URL,
		"backend.connect_timeout":        cfg.Backend.ConnectTimeout,
		"backend.reconnect_base_delay":   cfg.Backend.ReconnectBaseDelay,
		"backend.max_reconnect_attempts": cfg.Backend.MaxReconnectAttempts,
		"backend.keep_alive_interval":    cfg.Backend.KeepAliveInterval,

		"voice.wake_word":            cfg.Voice.WakeWord,
		"voice.language":             cfg.Voice.Language,
		"voice.confidence_threshold": cfg.Voice.ConfidenceThreshold,
		"voice.continuous":           cfg.Voice.Continuous,
		"voice.variants":             cfg.Voice.Variants,

		"timing.command_return_delay":      cfg.Timing.CommandReturnDelay,
		"timing.response_return_delay":     cfg.Timing.ResponseReturnDelay,
		"timing.inactivity_timeout":        cfg.Timing.InactivityTimeout,
		"timing.recognition_restart_delay": cfg.Timing.RecognitionRestartDelay,
		"timing.max_recognition_restarts":  cfg.Timing.MaxRecognitionRestarts,

		"heuristics.base":                    cfg.Heuristics.Base,
		"heuristics.per_character":           cfg.Heuristics.PerCharacter,
		"heuristics.length_cap":              cfg.Heuristics.LengthCap,
		"heuristics.agreement_similarity":    cfg.Heuristics.AgreementSimilarity,
		"heuristics.agreement_bonus":         cfg.Heuristics.AgreementBonus,
		"heuristics.agreement_cap":           cfg.Heuristics.AgreementCap,
		"heuristics.max_alternatives":        cfg.Heuristics.MaxAlternatives,
		"heuristics.candidate_bonus":         cfg.Heuristics.CandidateBonus,
		"heuristics.candidate_cap":           cfg.Heuristics.CandidateCap,
		"heuristics.recent_detection_bonus":  cfg.Heuristics.RecentDetectionBonus,
		"heuristics.recent_detection_cap":    cfg.Heuristics.RecentDetectionCap,
		"heuristics.recent_detection_window": cfg.Heuristics.RecentDetectionWindow,
		"heuristics.position_bonus":          cfg.Heuristics.PositionBonus,
		"heuristics.position_cap":            cfg.Heuristics.PositionCap,
		"heuristics.floor":                   cfg.Heuristics.Floor,
		"heuristics.ceiling":                 cfg.Heuristics.Ceiling,
		"heuristics.threshold_reduction":     cfg.Heuristics.ThresholdReduction,
		"heuristics.threshold_floor":         cfg.Heuristics.ThresholdFloor,
		"heuristics.fuzzy_match":             cfg.Heuristics.FuzzyMatch,

		"recognizer.mode":    cfg.Recognizer.Mode,
		"recognizer.command": cfg.Recognizer.Command,
		"recognizer.args":    cfg.Recognizer.Args,

		"rules.path":            cfg.Rules.Path,
		"rules.iteration_limit": cfg.Rules.IterationLimit,

		"logging.level":  cfg.Logging.Level,
		"logging.format": cfg.Logging.Format,

		"metrics.enabled": cfg.Metrics.Enabled,
		"metrics.addr":    cfg.Metrics.Addr,

		"ui.assets_dir": cfg.UI.AssetsDir,
	}
	for key, value := range values {
		v.SetDefault(key, value)
	}
}

// humanize replaces durations with their string form so encoded files read
// back through viper's duration hook.
func humanize(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for key, value := range settings {
		switch typed := value.(type) {
		case map[string]any:
			out[key] = humanize(typed)
		case time.Duration:
			out[key] = typed.String()
		default:
			out[key] = value
		}
	}
	return out
}

func defaultRulesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return firstExisting(
		filepath.Join(home, configDir, "commands.rules"),
		filepath.Join(home, ".config", "angelvoice", "commands.rules"),
	)
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
