// Package recognizer adapts external speech engines to ports.Recognizer.
//
// Engines talk to angelvoice in newline-delimited text. A plain line is a
// final transcript without confidence. A JSON object line carries a full
// result or an error code:
//
//	{"transcript":"angel","confidence":0.8,"alternatives":[{"transcript":"ange","confidence":0.4}]}
//	{"transcript":"ang","isFinal":false}
//	{"error":"no-speech"}
package recognizer

import (
	"encoding/json"
	"strings"

	"angelvoice/internal/domain"
	"angelvoice/internal/ports"
)

type lineAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type lineResult struct {
	Transcript   string            `json:"transcript"`
	Confidence   float64           `json:"confidence"`
	Alternatives []lineAlternative `json:"alternatives"`
	IsFinal      *bool             `json:"isFinal"`
	ResultIndex  int               `json:"resultIndex"`
	Error        string            `json:"error"`
}

// dispatchLine decodes one engine line and forwards it to handler.
func dispatchLine(handler ports.RecognitionHandler, line string) {
	line = strings.TrimSpace(line)
	if line == "" || handler == nil {
		return
	}

	if !strings.HasPrefix(line, "{") {
		handler.OnFinalResult(domain.RecognitionResult{Transcript: line, IsFinal: true})
		return
	}

	var decoded lineResult
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		handler.OnFinalResult(domain.RecognitionResult{Transcript: line, IsFinal: true})
		return
	}
	if code := strings.TrimSpace(decoded.Error); code != "" {
		handler.OnError(code)
		return
	}
	if decoded.IsFinal != nil && !*decoded.IsFinal {
		handler.OnInterimResult(decoded.Transcript)
		return
	}

	result := domain.RecognitionResult{
		Transcript:    decoded.Transcript,
		RawConfidence: decoded.Confidence,
		IsFinal:       true,
		ResultIndex:   decoded.ResultIndex,
	}
	if len(decoded.Alternatives) > 0 {
		result.Alternatives = make([]domain.Alternative, 0, len(decoded.Alternatives)+1)
		result.Alternatives = append(result.Alternatives, domain.Alternative{Transcript: decoded.Transcript, Confidence: decoded.Confidence})
		for _, alt := range decoded.Alternatives {
			result.Alternatives = append(result.Alternatives, domain.Alternative{Transcript: alt.Transcript, Confidence: alt.Confidence})
		}
	}
	handler.OnFinalResult(result)
}
