// Package protocol encodes and decodes the JSON messages exchanged with the voice backend.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"angelvoice/internal/domain"
)

// Outbound message types.
const (
	TypeConnection       = "connection"
	TypeSpeechStatus     = "speech_status"
	TypeWakeWordDetected = "wake_word_detected"
	TypeSpeechCommand    = "speech_command"
	TypeSpeechError      = "speech_error"
	TypePing             = "ping"
)

// Inbound message types.
const (
	TypeConfig            = "config"
	TypeConfiguration     = "configuration"
	TypeWakeWordConfirmed = "wake_word_confirmed"
	TypeAIResponse        = "ai_response"
	TypeError             = "error"
	TypePong              = "pong"
	TypeSystemCommand     = "SYSTEM_COMMAND"
)

const (
	StatusConnected = "connected"
	StatusListening = "listening"
	StatusStopped   = "stopped"
)

var ErrMissingType = errors.New("message has no type")

// Message is any outbound payload.
type Message interface {
	MessageType() string
}

type ConnectionMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type SpeechStatusMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type WakeWordDetectedMessage struct {
	Type       string  `json:"type"`
	Word       string  `json:"word"`
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

type SpeechCommandMessage struct {
	Type       string  `json:"type"`
	Command    string  `json:"command"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

type SpeechErrorMessage struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

type PingMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func (m ConnectionMessage) MessageType() string       { return m.Type }
func (m SpeechStatusMessage) MessageType() string     { return m.Type }
func (m WakeWordDetectedMessage) MessageType() string { return m.Type }
func (m SpeechCommandMessage) MessageType() string    { return m.Type }
func (m SpeechErrorMessage) MessageType() string      { return m.Type }
func (m PingMessage) MessageType() string             { return m.Type }

func Connection(sessionID string, now time.Time) ConnectionMessage {
	return ConnectionMessage{Type: TypeConnection, Status: StatusConnected, SessionID: sessionID, Timestamp: now.UnixMilli()}
}

func SpeechStatus(status string, now time.Time) SpeechStatusMessage {
	return SpeechStatusMessage{Type: TypeSpeechStatus, Status: status, Timestamp: now.UnixMilli()}
}

func WakeWordDetected(d domain.WakeWordDetection, now time.Time) WakeWordDetectedMessage {
	return WakeWordDetectedMessage{
		Type:       TypeWakeWordDetected,
		Word:       d.Word,
		Transcript: d.Transcript,
		Confidence: d.Confidence,
		Timestamp:  now.UnixMilli(),
	}
}

func SpeechCommand(command string, confidence float64, now time.Time) SpeechCommandMessage {
	return SpeechCommandMessage{Type: TypeSpeechCommand, Command: command, Confidence: confidence, Timestamp: now.UnixMilli()}
}

func SpeechError(code string, now time.Time) SpeechErrorMessage {
	return SpeechErrorMessage{Type: TypeSpeechError, Error: code, Timestamp: now.UnixMilli()}
}

func Ping(now time.Time) PingMessage {
	return PingMessage{Type: TypePing, Timestamp: now.UnixMilli()}
}

// Encode serializes an outbound message.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.MessageType(), err)
	}
	return payload, nil
}

// Inbound is the union of all messages the backend may send.
type Inbound struct {
	Type string `json:"type"`

	WakeWord            *string  `json:"wakeWord,omitempty"`
	Language            *string  `json:"language,omitempty"`
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty"`
	Continuous          *bool    `json:"continuous,omitempty"`

	Response string `json:"response,omitempty"`
	Data     *struct {
		Response string `json:"response"`
	} `json:"data,omitempty"`

	Message string `json:"message,omitempty"`
	Command string `json:"command,omitempty"`
}

// Decode parses an inbound payload. Payloads without a type are rejected.
func Decode(payload []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		return Inbound{}, fmt.Errorf("malformed inbound message: %w", err)
	}
	in.Type = strings.TrimSpace(in.Type)
	if in.Type == "" {
		return Inbound{}, ErrMissingType
	}
	return in, nil
}

// ResponseText returns the AI response from either supported layout.
func (in Inbound) ResponseText() string {
	if text := strings.TrimSpace(in.Response); text != "" {
		return text
	}
	if in.Data != nil {
		return strings.TrimSpace(in.Data.Response)
	}
	return ""
}

// ApplyConfig returns a complete config with the fields present in the
// message replacing those of current. Empty strings do not replace.
func (in Inbound) ApplyConfig(current domain.VoiceSessionConfig) domain.VoiceSessionConfig {
	next := current
	if in.WakeWord != nil && strings.TrimSpace(*in.WakeWord) != "" {
		next.WakeWord = strings.TrimSpace(*in.WakeWord)
	}
	if in.Language != nil && strings.TrimSpace(*in.Language) != "" {
		next.Language = strings.TrimSpace(*in.Language)
	}
	if in.ConfidenceThreshold != nil && *in.ConfidenceThreshold >= 0 && *in.ConfidenceThreshold <= 1 {
		next.ConfidenceThreshold = *in.ConfidenceThreshold
	}
	if in.Continuous != nil {
		next.Continuous = *in.Continuous
	}
	return next
}
