package main

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"angelvoice/internal/bootstrap"
	"angelvoice/internal/config"
	"angelvoice/internal/domain"
	"angelvoice/internal/usecase"
)

const (
	eventState             = "angelvoice:state"
	eventWakeWord          = "angelvoice:wakeWord"
	eventWakeWordConfirmed = "angelvoice:wakeWordConfirmed"
	eventCommand           = "angelvoice:command"
	eventError             = "angelvoice:error"
	eventPartial           = "angelvoice:partial"
	eventAIResponse        = "angelvoice:aiResponse"
	eventSystem            = "angelvoice:system"
	eventDormancy          = "angelvoice:dormancy"
)

type emitFunc func(ctx context.Context, name string, data ...interface{})

// App is the Wails application root.
type App struct {
	ctx        context.Context
	configPath string
	emit       emitFunc

	services    *bootstrap.Services
	coordinator *usecase.Coordinator
	cfg         *config.Config
	unsubscribe func()
	bootErr     error
}

func NewApp(configPath string) *App {
	return &App{configPath: configPath, emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(bootstrap.Options{ConfigPath: a.configPath})
	if err != nil {
		a.bootErr = err
		a.SpeechError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.coordinator = services.Coordinator
	a.unsubscribe = a.coordinator.Subscribe(a)
	services.WatchConfig()

	if err := services.Start(ctx); err != nil {
		a.SpeechError(domain.ErrorCodeStartup, err.Error())
	}
}

func (a *App) shutdown(ctx context.Context) {
	if a.services == nil {
		return
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if err := a.services.Close(ctx); err != nil {
		a.services.Logger.Warn().Err(err).Msg("shutdown incomplete")
	}
}

// StartListening resumes recognition and the backend connection after a stop.
func (a *App) StartListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.coordinator.Start(a.ctx); err != nil {
		return a.coordinator.Status(), err
	}
	return a.coordinator.Status(), nil
}

// StopListening stops recognition and closes the backend connection.
func (a *App) StopListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.coordinator.Stop(); err != nil {
		return a.coordinator.Status(), err
	}
	return a.coordinator.Status(), nil
}

// UpdateVoiceConfig applies wake word and recognition settings from the UI.
func (a *App) UpdateVoiceConfig(cfg domain.VoiceSessionConfig) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.coordinator.ApplyConfig(cfg); err != nil {
		return a.coordinator.Status(), err
	}
	return a.coordinator.Status(), nil
}

// MarkActivity resets the inactivity timer and leaves dormancy.
func (a *App) MarkActivity() {
	if a.coordinator != nil {
		a.coordinator.MarkActivity()
	}
}

// GetStatus returns the current coordinator status.
func (a *App) GetStatus() domain.Status {
	if a.coordinator == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.StateFailed, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.StateIdle, Mode: domain.ModeWakeWord}
	}
	return a.coordinator.Status()
}

// GetStats returns transport counters.
func (a *App) GetStats() domain.ConnectionStats {
	if a.coordinator == nil {
		return domain.ConnectionStats{Connection: domain.ConnectionDisconnected}
	}
	return a.coordinator.Stats()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.cfg == nil {
		return map[string]string{}
	}

	info := map[string]string{
		"backend":    a.cfg.Backend.URL,
		"wakeWord":   a.cfg.Voice.WakeWord,
		"language":   a.cfg.Voice.Language,
		"recognizer": a.cfg.Recognizer.Mode,
		"rulesFile":  a.cfg.Rules.Path,
	}
	if a.coordinator != nil {
		info["sessionId"] = a.coordinator.SessionID()
	}
	if a.services != nil {
		info["configFile"] = a.services.Loader.ConfigFile()
	}
	if a.cfg.Metrics.Enabled {
		info["metrics"] = a.cfg.Metrics.Addr
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.coordinator == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) send(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

// StateChanged emits coordinator lifecycle updates to the frontend.
func (a *App) StateChanged(state domain.CoordinatorState, mode domain.ListeningMode, reason domain.StateReason) {
	a.send(eventState, map[string]string{
		"state":   string(state),
		"mode":    string(mode),
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

func (a *App) WakeWordDetected(detection domain.WakeWordDetection) {
	a.send(eventWakeWord, detection)
}

func (a *App) WakeWordConfirmed() {
	a.send(eventWakeWordConfirmed, map[string]string{})
}

func (a *App) CommandReceived(command domain.Command) {
	a.send(eventCommand, command)
}

// SpeechError emits recognition, transport and backend errors to the UI.
func (a *App) SpeechError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) PartialTranscript(text string) {
	a.send(eventPartial, map[string]string{"text": text})
}

func (a *App) AIResponse(text string) {
	a.send(eventAIResponse, map[string]string{"text": text})
}

func (a *App) SystemCommand(command domain.SystemCommand) {
	a.send(eventSystem, map[string]string{"command": string(command)})
}

func (a *App) DormancyChanged(dormant bool) {
	a.send(eventDormancy, map[string]bool{"dormant": dormant})
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonStarted:
		return "Starting voice activation"
	case domain.ReasonConnected:
		return "Listening for the wake word"
	case domain.ReasonConnectFailed:
		return "Could not reach the assistant"
	case domain.ReasonConnectionLost:
		return "Connection lost; reconnecting"
	case domain.ReasonClosedByServer:
		return "Assistant closed the connection"
	case domain.ReasonWakeWordDetected:
		return "Listening for a command"
	case domain.ReasonCommandCaptured:
		return "Command sent"
	case domain.ReasonCommandWindowEnded, domain.ReasonResponseDelivered:
		return "Listening for the wake word"
	case domain.ReasonReconnectExhausted:
		return "Unable to reconnect"
	case domain.ReasonMicrophoneDenied:
		return "Microphone access denied"
	case domain.ReasonStopped:
		return "Voice activation stopped"
	case domain.ReasonDisposed:
		return "Voice activation shut down"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeMicrophoneDenied:
		return "Microphone access denied"
	case domain.ErrorCodeReconnectExhausted:
		return "Unable to reconnect to the assistant"
	case domain.ErrorCodeRecognition:
		return "Speech recognition error"
	case domain.ErrorCodeTransport:
		return "Connection error"
	case domain.ErrorCodeBackend:
		return "Assistant error"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
