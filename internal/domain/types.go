package domain

// CoordinatorState models the voice activation lifecycle.
type CoordinatorState string

const (
	StateIdle         CoordinatorState = "idle"
	StateConnecting   CoordinatorState = "connecting"
	StateListening    CoordinatorState = "listening"
	StateReconnecting CoordinatorState = "reconnecting"
	StateDisconnected CoordinatorState = "disconnected"
	StateFailed       CoordinatorState = "failed"
	StateDisposed     CoordinatorState = "disposed"
)

// ConnectionState tracks the backend transport.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionReconnecting ConnectionState = "reconnecting"
)

// ListeningMode selects how finalized recognition results are interpreted.
type ListeningMode string

const (
	ModeWakeWord ListeningMode = "wake_word"
	ModeCommand  ListeningMode = "command"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonStarted            StateReason = "started"
	ReasonConnected          StateReason = "connected"
	ReasonConnectFailed      StateReason = "connect_failed"
	ReasonConnectionLost     StateReason = "connection_lost"
	ReasonClosedByServer     StateReason = "closed_by_server"
	ReasonWakeWordDetected   StateReason = "wake_word_detected"
	ReasonCommandCaptured    StateReason = "command_captured"
	ReasonCommandWindowEnded StateReason = "command_window_ended"
	ReasonResponseDelivered  StateReason = "response_delivered"
	ReasonReconnectExhausted StateReason = "reconnect_exhausted"
	ReasonMicrophoneDenied   StateReason = "microphone_denied"
	ReasonStopped            StateReason = "stopped"
	ReasonDisposed           StateReason = "disposed"
)

// ErrorCode identifies user-visible failures.
type ErrorCode string

const (
	ErrorCodeStartup            ErrorCode = "startup"
	ErrorCodeMicrophoneDenied   ErrorCode = "microphone_denied"
	ErrorCodeReconnectExhausted ErrorCode = "reconnect_exhausted"
	ErrorCodeRecognition        ErrorCode = "recognition"
	ErrorCodeTransport          ErrorCode = "transport"
	ErrorCodeBackend            ErrorCode = "backend"
	ErrorCodeRules              ErrorCode = "rules"
)

// Recognition error codes reported by speech engines.
const (
	RecognitionNotAllowed = "not-allowed"
	RecognitionNetwork    = "network"
	RecognitionNoSpeech   = "no-speech"
	RecognitionAborted    = "aborted"
)

// Alternative is one hypothesis from a recognition engine.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// RecognitionResult is a single recognition event. It is consumed immediately.
type RecognitionResult struct {
	Transcript          string        `json:"transcript"`
	RawConfidence       float64       `json:"rawConfidence"`
	CorrectedConfidence float64       `json:"correctedConfidence"`
	Alternatives        []Alternative `json:"alternatives,omitempty"`
	IsFinal             bool          `json:"isFinal"`
	ResultIndex         int           `json:"resultIndex"`
}

// VoiceSessionConfig is the coordinator-owned recognition configuration.
type VoiceSessionConfig struct {
	WakeWord            string  `json:"wakeWord"`
	Language            string  `json:"language"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	Continuous          bool    `json:"continuous"`
}

// SystemCommand is a UI instruction issued by the backend or spoken as a
// control phrase.
type SystemCommand string

const (
	SystemShowControls  SystemCommand = "SHOW_CONTROLS"
	SystemHideControls  SystemCommand = "HIDE_CONTROLS"
	SystemEnterDarkMode SystemCommand = "ENTER_DARK_MODE"
	SystemExitDarkMode  SystemCommand = "EXIT_DARK_MODE"
)

// WakeWordDetection is emitted when the wake word is accepted.
type WakeWordDetection struct {
	Word       string  `json:"word"`
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Command is emitted when a command is captured after a wake word.
type Command struct {
	Raw        string        `json:"raw"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	UICommand  SystemCommand `json:"uiCommand,omitempty"`
}

// Status summarizes the coordinator for the UI.
type Status struct {
	IsInitialized     bool               `json:"isInitialized"`
	IsConnected       bool               `json:"isConnected"`
	State             CoordinatorState   `json:"state"`
	Connection        ConnectionState    `json:"connection"`
	Mode              ListeningMode      `json:"mode"`
	Config            VoiceSessionConfig `json:"config"`
	Recognizing       bool               `json:"recognizing"`
	ReconnectAttempts int                `json:"reconnectAttempts"`
	Dormant           bool               `json:"dormant"`
	Message           string             `json:"message,omitempty"`
}

// ConnectionStats reports transport counters.
type ConnectionStats struct {
	SessionID         string          `json:"sessionId"`
	Connection        ConnectionState `json:"connection"`
	ReconnectAttempts int             `json:"reconnectAttempts"`
	LastCloseCode     int             `json:"lastCloseCode"`
	MessagesSent      int             `json:"messagesSent"`
	MessagesReceived  int             `json:"messagesReceived"`
	Detections        int             `json:"detections"`
}
