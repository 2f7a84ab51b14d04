package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"angelvoice/internal/domain"
)

var fixedNow = time.UnixMilli(1_700_000_000_123)

func decodeMap(t *testing.T, msg Message) map[string]any {
	t.Helper()
	payload, err := Encode(msg)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	return out
}

func TestEncodeOutboundShapes(t *testing.T) {
	t.Parallel()

	conn := decodeMap(t, Connection("abc", fixedNow))
	assert.Equal(t, "connection", conn["type"])
	assert.Equal(t, "connected", conn["status"])
	assert.Equal(t, "abc", conn["sessionId"])
	assert.EqualValues(t, 1_700_000_000_123, conn["timestamp"])

	wake := decodeMap(t, WakeWordDetected(domain.WakeWordDetection{Word: "Angel", Transcript: "Angèle", Confidence: 0.82}, fixedNow))
	assert.Equal(t, "wake_word_detected", wake["type"])
	assert.Equal(t, "Angel", wake["word"])
	assert.Equal(t, "Angèle", wake["transcript"])
	assert.InDelta(t, 0.82, wake["confidence"], 1e-9)

	cmd := decodeMap(t, SpeechCommand("turn on the lights", 0.1, fixedNow))
	assert.Equal(t, "speech_command", cmd["type"])
	assert.Equal(t, "turn on the lights", cmd["command"])
	assert.InDelta(t, 0.1, cmd["confidence"], 1e-9)

	status := decodeMap(t, SpeechStatus(StatusStopped, fixedNow))
	assert.Equal(t, map[string]any{"type": "speech_status", "status": "stopped", "timestamp": float64(1_700_000_000_123)}, status)

	speechErr := decodeMap(t, SpeechError("no-speech", fixedNow))
	assert.Equal(t, "no-speech", speechErr["error"])

	ping := decodeMap(t, Ping(fixedNow))
	assert.Equal(t, map[string]any{"type": "ping", "timestamp": float64(1_700_000_000_123)}, ping)
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte("{not json"))
	require.Error(t, err)

	_, err = Decode([]byte(`{"message":"no type"}`))
	require.True(t, errors.Is(err, ErrMissingType))
}

func TestResponseTextLayouts(t *testing.T) {
	t.Parallel()

	flat, err := Decode([]byte(`{"type":"ai_response","response":"Bonjour"}`))
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", flat.ResponseText())

	nested, err := Decode([]byte(`{"type":"ai_response","data":{"response":"Salut"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Salut", nested.ResponseText())

	empty, err := Decode([]byte(`{"type":"ai_response"}`))
	require.NoError(t, err)
	assert.Empty(t, empty.ResponseText())
}

func TestApplyConfigMergesPresentFields(t *testing.T) {
	t.Parallel()

	current := domain.VoiceSessionConfig{WakeWord: "Angel", Language: "fr-FR", ConfidenceThreshold: 0.7, Continuous: true}

	in, err := Decode([]byte(`{"type":"configuration","wakeWord":"Computer","confidenceThreshold":0.5}`))
	require.NoError(t, err)
	next := in.ApplyConfig(current)
	assert.Equal(t, domain.VoiceSessionConfig{WakeWord: "Computer", Language: "fr-FR", ConfidenceThreshold: 0.5, Continuous: true}, next)

	in, err = Decode([]byte(`{"type":"config","wakeWord":"","continuous":false,"confidenceThreshold":3}`))
	require.NoError(t, err)
	next = in.ApplyConfig(current)
	assert.Equal(t, domain.VoiceSessionConfig{WakeWord: "Angel", Language: "fr-FR", ConfidenceThreshold: 0.7, Continuous: false}, next)
}
