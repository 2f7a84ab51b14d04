package usecase

import "time"

const maxBackoffShift = 20

// backoffDelay returns base * 2^(attempt-1) for attempt >= 1.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return base << shift
}

type noopTelemetry struct{}

func (noopTelemetry) ConnectionAttempt()      {}
func (noopTelemetry) Reconnect()              {}
func (noopTelemetry) Connected(bool)          {}
func (noopTelemetry) Confidence(float64)      {}
func (noopTelemetry) WakeWordDetected()       {}
func (noopTelemetry) Command()                {}
func (noopTelemetry) ResultDropped(string)    {}
func (noopTelemetry) RecognitionError(string) {}
func (noopTelemetry) MessageSent(string)      {}
func (noopTelemetry) MessageReceived(string)  {}
