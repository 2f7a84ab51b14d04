package ports

import (
	"context"

	"angelvoice/internal/domain"
)

// RecognitionHandler receives speech recognition callbacks.
type RecognitionHandler interface {
	OnFinalResult(result domain.RecognitionResult)
	OnInterimResult(transcript string)
	OnError(code string)
	OnListeningStarted()
	OnListeningStopped()
}

// Recognizer is an external continuous speech recognition engine.
type Recognizer interface {
	SetHandler(handler RecognitionHandler)
	Start(ctx context.Context) error
	Stop() error
	UpdateConfig(cfg domain.VoiceSessionConfig) error
}

// CloseStatus describes how a transport connection ended.
type CloseStatus struct {
	Code   int
	Reason string
	Err    error
}

// TransportConn is an open bidirectional message connection.
type TransportConn interface {
	Send(payload []byte) error
	Incoming() <-chan []byte
	Wait() CloseStatus
	Close(code int, reason string) error
}

// TransportDialer opens backend connections.
type TransportDialer interface {
	Dial(ctx context.Context, url string) (TransportConn, error)
}

// RulesEngine transforms command transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
	UICommand(text string) (domain.SystemCommand, bool)
}

// Telemetry records coordinator counters.
type Telemetry interface {
	ConnectionAttempt()
	Reconnect()
	Connected(connected bool)
	Confidence(value float64)
	WakeWordDetected()
	Command()
	ResultDropped(reason string)
	RecognitionError(code string)
	MessageSent(messageType string)
	MessageReceived(messageType string)
}

// EventSink receives coordinator events for the UI.
type EventSink interface {
	StateChanged(state domain.CoordinatorState, mode domain.ListeningMode, reason domain.StateReason)
	WakeWordDetected(detection domain.WakeWordDetection)
	WakeWordConfirmed()
	CommandReceived(command domain.Command)
	SpeechError(code domain.ErrorCode, detail string)
	PartialTranscript(text string)
	AIResponse(text string)
	SystemCommand(command domain.SystemCommand)
	DormancyChanged(dormant bool)
}
