package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"angelvoice/internal/clock"
	"angelvoice/internal/domain"
	"angelvoice/internal/ports"
	"angelvoice/internal/protocol"
	"angelvoice/internal/wakeword"
)

var (
	ErrDisposed       = errors.New("coordinator is disposed")
	ErrAlreadyStarted = errors.New("coordinator is already started")
	ErrNotConnected   = errors.New("backend is not connected")
	ErrConnectTimeout = errors.New("backend connect timed out")
)

const closeNormal = 1000

const (
	dropEmpty          = "empty"
	dropBelowThreshold = "below_threshold"
	dropNoMatch        = "no_match"
	dropCommandClosed  = "command_window_closed"
	dropInactive       = "inactive"
)

// Config controls connection, timing and scoring behavior.
type Config struct {
	BackendURL           string
	ConnectTimeout       time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	KeepAliveInterval    time.Duration
	CommandReturnDelay   time.Duration
	ResponseReturnDelay  time.Duration
	InactivityTimeout    time.Duration

	// RecognitionRestartDelay and MaxRecognitionRestarts bound how the
	// recognizer is restarted after it stops on its own.
	RecognitionRestartDelay time.Duration
	MaxRecognitionRestarts  int

	Voice      domain.VoiceSessionConfig
	Variants   []string
	Heuristics wakeword.Heuristics
}

func (c Config) withDefaults() Config {
	if c.BackendURL == "" {
		c.BackendURL = "ws://localhost:8080/ws/voice"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 5 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 30 * time.Second
	}
	if c.CommandReturnDelay <= 0 {
		c.CommandReturnDelay = time.Second
	}
	if c.ResponseReturnDelay <= 0 {
		c.ResponseReturnDelay = 3 * time.Second
	}
	if c.RecognitionRestartDelay <= 0 {
		c.RecognitionRestartDelay = time.Second
	}
	if c.MaxRecognitionRestarts <= 0 {
		c.MaxRecognitionRestarts = 3
	}
	if strings.TrimSpace(c.Voice.WakeWord) == "" {
		c.Voice.WakeWord = "Angel"
	}
	if c.Voice.Language == "" {
		c.Voice.Language = "fr-FR"
	}
	if c.Heuristics == (wakeword.Heuristics{}) {
		c.Heuristics = wakeword.DefaultHeuristics()
	}
	return c
}

// Coordinator turns recognition results into wake word and command events,
// delivers them to the backend and keeps the connection alive.
//
// All state below the loop field is owned by the loop goroutine. Observers
// are called on that goroutine and must not call back into the coordinator
// synchronously.
type Coordinator struct {
	recognizer ports.Recognizer
	dialer     ports.TransportDialer
	clock      clock.Scheduler
	telemetry  ports.Telemetry
	observers  *observerSet
	finalizer  commandFinalizer
	log        zerolog.Logger
	cfg        Config
	sessionID  string

	loop        *eventLoop
	disposeOnce sync.Once
	final       domain.Status

	runCtx    context.Context
	runCancel context.CancelFunc

	state       domain.CoordinatorState
	connState   domain.ConnectionState
	mode        domain.ListeningMode
	voice       domain.VoiceSessionConfig
	matcher     *wakeword.Matcher
	started     bool
	everStarted bool

	active     *activeConnection
	generation uint64
	attempts   int
	surfaced   bool

	// recognizing is true between a successful recognizer Start and a stop.
	// recognitionEpoch tags the handler of each Start so stop events caused
	// by our own Stop are told apart from the engine giving up.
	recognizing      bool
	recognitionEpoch uint64
	restartAttempts  int
	micDenied        bool
	commandCaptured  bool
	lastDetection    time.Time
	dormant          bool

	reconnectTimer  timerSlot
	keepAliveTimer  timerSlot
	modeTimer       timerSlot
	responseTimer   timerSlot
	restartTimer    timerSlot
	inactivityTimer timerSlot

	stats sessionStats
}

func NewCoordinator(
	recognizer ports.Recognizer,
	dialer ports.TransportDialer,
	rules ports.RulesEngine,
	scheduler clock.Scheduler,
	telemetry ports.Telemetry,
	logger zerolog.Logger,
	cfg Config,
) *Coordinator {
	cfg = cfg.withDefaults()
	if scheduler == nil {
		scheduler = clock.Real{}
	}
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}

	sessionID := uuid.NewString()
	log := logger.With().Str("component", "coordinator").Str("session", sessionID).Logger()
	observers := newObserverSet()

	c := &Coordinator{
		recognizer: recognizer,
		dialer:     dialer,
		clock:      scheduler,
		telemetry:  telemetry,
		observers:  observers,
		finalizer:  newCommandFinalizer(rules, observers, log),
		log:        log,
		cfg:        cfg,
		sessionID:  sessionID,
		loop:       newEventLoop(),
		state:      domain.StateIdle,
		connState:  domain.ConnectionDisconnected,
		mode:       domain.ModeWakeWord,
	}
	c.setVoiceConfig(cfg.Voice)
	recognizer.SetHandler(recognitionEvents{c: c})
	return c
}

// SessionID identifies this coordinator instance to the backend.
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// Subscribe registers sink for coordinator events. The returned function
// removes it and is safe to call more than once.
func (c *Coordinator) Subscribe(sink ports.EventSink) func() {
	return c.observers.add(sink)
}

// Start connects to the backend. Listening begins once the connection opens.
func (c *Coordinator) Start(ctx context.Context) error {
	err := ErrDisposed
	c.loop.call(func() {
		if c.state == domain.StateDisposed {
			return
		}
		if c.started {
			err = ErrAlreadyStarted
			return
		}
		err = nil
		c.runCtx, c.runCancel = context.WithCancel(ctx)
		c.started = true
		c.everStarted = true
		c.attempts = 0
		c.surfaced = false
		c.micDenied = false
		c.restartAttempts = 0
		c.mode = domain.ModeWakeWord
		c.commandCaptured = false
		c.log.Info().Str("url", c.cfg.BackendURL).Msg("starting voice activation")
		c.setState(domain.StateConnecting, domain.ReasonStarted)
		c.markActivity()
		c.connect()
	})
	return err
}

// Stop ends listening and closes the backend connection. Start may be called again.
func (c *Coordinator) Stop() error {
	err := ErrDisposed
	c.loop.call(func() {
		if c.state == domain.StateDisposed {
			return
		}
		err = nil
		if !c.started {
			return
		}
		c.teardown("stopped")
		c.setState(domain.StateIdle, domain.ReasonStopped)
	})
	return err
}

// Dispose releases every resource. It is safe to call from any state and more than once.
func (c *Coordinator) Dispose() {
	c.disposeOnce.Do(func() {
		c.loop.call(func() {
			c.teardown("disposed")
			c.setState(domain.StateDisposed, domain.ReasonDisposed)
			c.final = c.snapshot()
		})
		c.loop.close()
		<-c.loop.done
		c.log.Info().Msg("coordinator disposed")
	})
}

// Status returns a snapshot for the UI.
func (c *Coordinator) Status() domain.Status {
	var status domain.Status
	if !c.loop.call(func() { status = c.snapshot() }) {
		<-c.loop.done
		return c.final
	}
	return status
}

// Stats returns transport counters.
func (c *Coordinator) Stats() domain.ConnectionStats {
	stats := domain.ConnectionStats{SessionID: c.sessionID, Connection: domain.ConnectionDisconnected}
	c.loop.call(func() {
		stats = domain.ConnectionStats{
			SessionID:         c.sessionID,
			Connection:        c.connState,
			ReconnectAttempts: c.attempts,
			LastCloseCode:     c.stats.lastClose,
			MessagesSent:      c.stats.sent,
			MessagesReceived:  c.stats.received,
			Detections:        c.stats.detections,
		}
	})
	return stats
}

// ApplyConfig replaces the voice session config and pushes it to the recognizer.
func (c *Coordinator) ApplyConfig(cfg domain.VoiceSessionConfig) error {
	err := ErrDisposed
	c.loop.call(func() {
		err = nil
		c.applyVoiceConfig(cfg, "local")
	})
	return err
}

// MarkActivity records user activity and leaves dormancy.
func (c *Coordinator) MarkActivity() {
	c.loop.call(c.markActivity)
}

func (c *Coordinator) snapshot() domain.Status {
	return domain.Status{
		IsInitialized:     c.everStarted,
		IsConnected:       c.active != nil,
		State:             c.state,
		Connection:        c.connState,
		Mode:              c.mode,
		Config:            c.voice,
		Recognizing:       c.recognizing,
		ReconnectAttempts: c.attempts,
		Dormant:           c.dormant,
	}
}

func (c *Coordinator) setState(state domain.CoordinatorState, reason domain.StateReason) {
	c.state = state
	c.log.Info().
		Str("state", string(state)).
		Str("mode", string(c.mode)).
		Str("reason", string(reason)).
		Msg("state changed")
	c.observers.each(func(sink ports.EventSink) {
		sink.StateChanged(state, c.mode, reason)
	})
}

func (c *Coordinator) emitError(code domain.ErrorCode, detail string) {
	c.observers.each(func(sink ports.EventSink) {
		sink.SpeechError(code, detail)
	})
}

func (c *Coordinator) stopTimers() {
	c.reconnectTimer.stop()
	c.keepAliveTimer.stop()
	c.modeTimer.stop()
	c.responseTimer.stop()
	c.restartTimer.stop()
	c.inactivityTimer.stop()
}

func (c *Coordinator) teardown(reason string) {
	c.started = false
	c.generation++
	c.stopTimers()

	if c.recognizing {
		if err := c.recognizer.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("failed to stop recognizer")
		}
		c.recognizing = false
	}

	if c.active != nil {
		if err := c.active.conn.Close(closeNormal, reason); err != nil {
			c.log.Debug().Err(err).Msg("transport close returned error")
		}
		c.active = nil
		c.telemetry.Connected(false)
	}
	c.connState = domain.ConnectionDisconnected
	c.mode = domain.ModeWakeWord
	c.commandCaptured = false

	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
}

func (c *Coordinator) connect() {
	c.reconnectTimer.stop()
	c.generation++
	generation := c.generation
	c.connState = domain.ConnectionConnecting
	c.telemetry.ConnectionAttempt()

	ctx, cancel := context.WithCancelCause(c.runCtx)
	timeout := c.clock.AfterFunc(c.cfg.ConnectTimeout, func() { cancel(ErrConnectTimeout) })
	url := c.cfg.BackendURL
	go func() {
		conn, err := c.dialer.Dial(ctx, url)
		timeout.Stop()
		if err != nil && errors.Is(context.Cause(ctx), ErrConnectTimeout) {
			err = fmt.Errorf("%w: %w", ErrConnectTimeout, err)
		}
		cancel(nil)
		if !c.loop.post(func() { c.handleDialResult(generation, conn, err) }) && conn != nil {
			_ = conn.Close(closeNormal, "disposed")
		}
	}()
}

func (c *Coordinator) handleDialResult(generation uint64, conn ports.TransportConn, err error) {
	if generation != c.generation || !c.started {
		if conn != nil {
			_ = conn.Close(closeNormal, "superseded")
		}
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Int("attempt", c.attempts).Msg("backend connection failed")
		c.connState = domain.ConnectionDisconnected
		c.setState(domain.StateDisconnected, domain.ReasonConnectFailed)
		c.scheduleReconnect()
		return
	}

	c.active = &activeConnection{generation: generation, conn: conn}
	c.attempts = 0
	c.connState = domain.ConnectionConnected
	c.telemetry.Connected(true)
	c.log.Info().Msg("backend connected")

	go c.readLoop(generation, conn)

	_ = c.send(protocol.Connection(c.sessionID, c.clock.Now()))
	c.armKeepAlive()

	c.mode = domain.ModeWakeWord
	c.commandCaptured = false
	c.setState(domain.StateListening, domain.ReasonConnected)
	c.startRecognition()
}

func (c *Coordinator) readLoop(generation uint64, conn ports.TransportConn) {
	for payload := range conn.Incoming() {
		payload := payload
		if !c.loop.post(func() { c.handleMessage(generation, payload) }) {
			return
		}
	}
	status := conn.Wait()
	c.loop.post(func() { c.handleClose(generation, status) })
}

func (c *Coordinator) handleClose(generation uint64, status ports.CloseStatus) {
	if c.active == nil || c.active.generation != generation {
		return
	}
	c.active = nil
	c.keepAliveTimer.stop()
	c.stats.lastClose = status.Code
	c.telemetry.Connected(false)

	event := c.log.Warn()
	if status.Code == closeNormal {
		event = c.log.Info()
	}
	event.Int("code", status.Code).Str("reason", status.Reason).Err(status.Err).Msg("backend connection closed")

	if status.Code == closeNormal {
		c.connState = domain.ConnectionDisconnected
		c.setState(domain.StateDisconnected, domain.ReasonClosedByServer)
		return
	}
	c.scheduleReconnect()
}

func (c *Coordinator) scheduleReconnect() {
	if !c.started {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.fail()
		return
	}

	c.attempts++
	delay := backoffDelay(c.cfg.ReconnectBaseDelay, c.attempts)
	c.connState = domain.ConnectionReconnecting
	c.telemetry.Reconnect()
	c.log.Info().
		Int("attempt", c.attempts).
		Int("max", c.cfg.MaxReconnectAttempts).
		Dur("delay", delay).
		Msg("scheduling reconnect")
	c.setState(domain.StateReconnecting, domain.ReasonConnectionLost)

	c.reconnectTimer.arm(c.clock, delay, c.loop.call, func() {
		if !c.started || c.state != domain.StateReconnecting {
			return
		}
		c.connect()
	})
}

func (c *Coordinator) fail() {
	c.log.Error().Int("attempts", c.attempts).Msg("reconnect attempts exhausted")
	c.started = false
	c.generation++
	c.stopTimers()
	if c.recognizing {
		if err := c.recognizer.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("failed to stop recognizer")
		}
		c.recognizing = false
	}
	c.connState = domain.ConnectionDisconnected
	c.setState(domain.StateFailed, domain.ReasonReconnectExhausted)
	if !c.surfaced {
		c.surfaced = true
		c.emitError(domain.ErrorCodeReconnectExhausted, "unable to reach the voice backend")
	}
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
}

func (c *Coordinator) armKeepAlive() {
	generation := c.generation
	c.keepAliveTimer.arm(c.clock, c.cfg.KeepAliveInterval, c.loop.call, func() {
		if c.active == nil || c.active.generation != generation {
			return
		}
		_ = c.send(protocol.Ping(c.clock.Now()))
		c.armKeepAlive()
	})
}

func (c *Coordinator) send(msg protocol.Message) error {
	if c.active == nil {
		c.log.Debug().Str("type", msg.MessageType()).Msg("dropping outbound message while disconnected")
		return ErrNotConnected
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode outbound message")
		return err
	}
	if err := c.active.conn.Send(payload); err != nil {
		c.log.Warn().Err(err).Str("type", msg.MessageType()).Msg("failed to send message")
		return err
	}
	c.stats.sent++
	c.telemetry.MessageSent(msg.MessageType())
	return nil
}

func (c *Coordinator) handleMessage(generation uint64, payload []byte) {
	if c.active == nil || c.active.generation != generation {
		return
	}
	c.stats.received++

	in, err := protocol.Decode(payload)
	if err != nil {
		c.log.Debug().Err(err).Int("bytes", len(payload)).Msg("discarding inbound message")
		return
	}
	c.telemetry.MessageReceived(in.Type)

	switch in.Type {
	case protocol.TypeConfig, protocol.TypeConfiguration:
		c.applyVoiceConfig(in.ApplyConfig(c.voice), "backend")
	case protocol.TypeWakeWordConfirmed:
		c.observers.each(func(sink ports.EventSink) { sink.WakeWordConfirmed() })
	case protocol.TypeAIResponse:
		text := in.ResponseText()
		c.observers.each(func(sink ports.EventSink) { sink.AIResponse(text) })
		c.responseTimer.arm(c.clock, c.cfg.ResponseReturnDelay, c.loop.call, func() {
			c.returnToWakeWordMode(domain.ReasonResponseDelivered)
		})
	case protocol.TypeError:
		c.log.Warn().Str("message", in.Message).Msg("backend reported an error")
		c.emitError(domain.ErrorCodeBackend, in.Message)
	case protocol.TypePong:
	case protocol.TypeSystemCommand:
		c.handleSystemCommand(domain.SystemCommand(strings.ToUpper(strings.TrimSpace(in.Command))))
	default:
		c.log.Debug().Str("type", in.Type).Msg("ignoring unknown message type")
	}
}

func (c *Coordinator) handleSystemCommand(command domain.SystemCommand) {
	switch command {
	case domain.SystemEnterDarkMode:
		c.enterDormant()
	case domain.SystemExitDarkMode:
		c.markActivity()
	case domain.SystemShowControls, domain.SystemHideControls:
	default:
		c.log.Debug().Str("command", string(command)).Msg("ignoring unknown system command")
		return
	}
	c.observers.each(func(sink ports.EventSink) { sink.SystemCommand(command) })
}

func (c *Coordinator) applyVoiceConfig(next domain.VoiceSessionConfig, source string) {
	if strings.TrimSpace(next.WakeWord) == "" {
		next.WakeWord = c.voice.WakeWord
	}
	c.setVoiceConfig(next)
	c.log.Info().
		Str("source", source).
		Str("wakeWord", next.WakeWord).
		Str("language", next.Language).
		Float64("threshold", next.ConfidenceThreshold).
		Bool("continuous", next.Continuous).
		Msg("voice config replaced")
	if err := c.recognizer.UpdateConfig(c.recognitionConfig()); err != nil {
		c.log.Warn().Err(err).Msg("recognizer rejected config")
	}
}

// recognitionConfig is the voice config with command mode applied: a
// command is a single utterance, so continuous recognition is off.
func (c *Coordinator) recognitionConfig() domain.VoiceSessionConfig {
	cfg := c.voice
	if c.mode == domain.ModeCommand {
		cfg.Continuous = false
	}
	return cfg
}

func (c *Coordinator) setVoiceConfig(next domain.VoiceSessionConfig) {
	var extra []string
	if strings.EqualFold(strings.TrimSpace(next.WakeWord), strings.TrimSpace(c.cfg.Voice.WakeWord)) {
		extra = c.cfg.Variants
	}
	c.voice = next
	c.matcher = wakeword.NewMatcher(next.WakeWord, extra, c.cfg.Heuristics.FuzzyMatch)
}

func (c *Coordinator) startRecognition() {
	if c.recognizing || c.micDenied || c.runCtx == nil {
		return
	}
	c.restartTimer.stop()
	c.recognitionEpoch++
	c.recognizer.SetHandler(recognitionEvents{c: c, epoch: c.recognitionEpoch})
	if err := c.recognizer.Start(c.runCtx); err != nil {
		c.log.Error().Err(err).Msg("failed to start recognition")
		c.emitError(domain.ErrorCodeRecognition, err.Error())
		return
	}
	c.recognizing = true
}

func (c *Coordinator) restartRecognition() {
	if c.micDenied {
		return
	}
	if c.recognizing {
		if err := c.recognizer.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("failed to stop recognizer")
		}
		c.recognizing = false
	}
	if err := c.recognizer.UpdateConfig(c.recognitionConfig()); err != nil {
		c.log.Warn().Err(err).Msg("recognizer rejected config")
	}
	c.startRecognition()
}

// scheduleRecognitionRestart brings recognition back after the engine
// stopped without being asked to.
func (c *Coordinator) scheduleRecognitionRestart() {
	if !c.started || c.micDenied {
		return
	}
	if c.restartAttempts >= c.cfg.MaxRecognitionRestarts {
		c.log.Error().Int("attempts", c.restartAttempts).Msg("recognition restart attempts exhausted")
		c.emitError(domain.ErrorCodeRecognition, "speech recognition stopped")
		return
	}
	c.restartAttempts++
	c.log.Info().
		Int("attempt", c.restartAttempts).
		Int("max", c.cfg.MaxRecognitionRestarts).
		Dur("delay", c.cfg.RecognitionRestartDelay).
		Msg("recognition stopped unexpectedly; scheduling restart")
	c.restartTimer.arm(c.clock, c.cfg.RecognitionRestartDelay, c.loop.call, func() {
		if !c.started || c.recognizing {
			return
		}
		switch {
		case c.mode == domain.ModeWakeWord:
			c.restartRecognition()
		case !c.commandCaptured:
			c.returnToWakeWordMode(domain.ReasonCommandWindowEnded)
		}
	})
}

func (c *Coordinator) scheduleModeReturn(delay time.Duration, reason domain.StateReason) {
	c.modeTimer.arm(c.clock, delay, c.loop.call, func() {
		c.returnToWakeWordMode(reason)
	})
}

func (c *Coordinator) returnToWakeWordMode(reason domain.StateReason) {
	if !c.started || c.mode == domain.ModeWakeWord {
		return
	}
	c.mode = domain.ModeWakeWord
	c.commandCaptured = false
	c.restartAttempts = 0
	c.modeTimer.stop()
	c.responseTimer.stop()
	c.restartRecognition()
	if c.state == domain.StateListening {
		c.setState(domain.StateListening, reason)
	}
}

func (c *Coordinator) handleFinalResult(result domain.RecognitionResult) {
	if !c.started {
		c.telemetry.ResultDropped(dropInactive)
		return
	}
	transcript := strings.TrimSpace(result.Transcript)
	if transcript == "" {
		c.telemetry.ResultDropped(dropEmpty)
		return
	}
	c.restartAttempts = 0

	now := c.clock.Now()
	since := time.Duration(-1)
	if !c.lastDetection.IsZero() {
		since = now.Sub(c.lastDetection)
	}
	candidate := c.matcher.IsCandidate(transcript)
	confidence := c.cfg.Heuristics.Resolve(result.RawConfidence, wakeword.Evidence{
		Transcript:         transcript,
		Alternatives:       result.Alternatives,
		ResultIndex:        result.ResultIndex,
		Candidate:          candidate,
		SinceLastDetection: since,
	})
	result.CorrectedConfidence = confidence
	c.telemetry.Confidence(confidence)
	c.log.Debug().
		Str("transcript", transcript).
		Float64("raw", result.RawConfidence).
		Float64("corrected", result.CorrectedConfidence).
		Str("mode", string(c.mode)).
		Msg("final result")

	if c.mode == domain.ModeCommand {
		c.captureCommand(transcript, confidence)
		return
	}

	threshold := c.cfg.Heuristics.EffectiveThreshold(c.voice.ConfidenceThreshold, candidate)
	if confidence < threshold {
		c.log.Debug().
			Str("transcript", transcript).
			Float64("confidence", confidence).
			Float64("threshold", threshold).
			Msg("result below threshold")
		c.telemetry.ResultDropped(dropBelowThreshold)
		return
	}
	if !c.matcher.Contains(transcript) {
		c.log.Debug().Str("transcript", transcript).Msg("no wake word in result")
		c.telemetry.ResultDropped(dropNoMatch)
		return
	}

	detection := domain.WakeWordDetection{Word: c.matcher.Word(), Transcript: transcript, Confidence: confidence}
	c.lastDetection = now
	c.stats.detections++
	c.telemetry.WakeWordDetected()
	c.markActivity()
	c.log.Info().Str("transcript", transcript).Float64("confidence", confidence).Msg("wake word detected")

	_ = c.send(protocol.WakeWordDetected(detection, now))
	c.observers.each(func(sink ports.EventSink) { sink.WakeWordDetected(detection) })

	c.modeTimer.stop()
	c.responseTimer.stop()
	c.mode = domain.ModeCommand
	c.commandCaptured = false
	c.restartRecognition()
	c.setState(c.state, domain.ReasonWakeWordDetected)
}

func (c *Coordinator) captureCommand(transcript string, confidence float64) {
	if c.commandCaptured {
		c.telemetry.ResultDropped(dropCommandClosed)
		return
	}
	c.commandCaptured = true

	command := c.finalizer.Finalize(transcript, confidence)
	c.telemetry.Command()
	c.markActivity()
	c.log.Info().Str("command", command.Text).Float64("confidence", confidence).Msg("command captured")

	_ = c.send(protocol.SpeechCommand(command.Text, confidence, c.clock.Now()))
	c.observers.each(func(sink ports.EventSink) { sink.CommandReceived(command) })
	if command.UICommand != "" {
		c.log.Info().Str("control", string(command.UICommand)).Msg("control phrase recognized")
		c.observers.each(func(sink ports.EventSink) { sink.SystemCommand(command.UICommand) })
	}

	c.setState(c.state, domain.ReasonCommandCaptured)
	c.scheduleModeReturn(c.cfg.CommandReturnDelay, domain.ReasonCommandWindowEnded)
}

func (c *Coordinator) handleRecognitionError(code string) {
	code = strings.TrimSpace(code)
	c.telemetry.RecognitionError(code)
	if !c.started {
		return
	}

	if code == domain.RecognitionNotAllowed {
		c.log.Error().Msg("microphone permission denied")
		c.micDenied = true
		c.recognizing = false
		_ = c.send(protocol.SpeechError(code, c.clock.Now()))
		c.emitError(domain.ErrorCodeMicrophoneDenied, "microphone access denied")
		c.setState(c.state, domain.ReasonMicrophoneDenied)
		return
	}

	c.log.Warn().Str("code", code).Msg("recognition error")
	_ = c.send(protocol.SpeechError(code, c.clock.Now()))
	c.emitError(domain.ErrorCodeRecognition, code)
}

func (c *Coordinator) handleListening(epoch uint64, listening bool) {
	if !c.started {
		return
	}
	status := protocol.StatusStopped
	if listening {
		status = protocol.StatusListening
	}
	_ = c.send(protocol.SpeechStatus(status, c.clock.Now()))

	if listening || epoch != c.recognitionEpoch || !c.recognizing {
		return
	}
	c.recognizing = false
	c.scheduleRecognitionRestart()
}

func (c *Coordinator) markActivity() {
	if c.dormant {
		c.dormant = false
		c.log.Info().Msg("leaving dormant mode")
		c.observers.each(func(sink ports.EventSink) { sink.DormancyChanged(false) })
	}
	if c.cfg.InactivityTimeout <= 0 || !c.started {
		return
	}
	c.inactivityTimer.arm(c.clock, c.cfg.InactivityTimeout, c.loop.call, c.enterDormant)
}

func (c *Coordinator) enterDormant() {
	if c.dormant {
		return
	}
	c.dormant = true
	c.log.Info().Msg("entering dormant mode")
	c.observers.each(func(sink ports.EventSink) { sink.DormancyChanged(true) })
}

// recognitionEvents adapts recognizer callbacks onto the loop.
type recognitionEvents struct {
	c     *Coordinator
	epoch uint64
}

func (r recognitionEvents) OnFinalResult(result domain.RecognitionResult) {
	r.c.loop.post(func() { r.c.handleFinalResult(result) })
}

func (r recognitionEvents) OnInterimResult(transcript string) {
	r.c.loop.post(func() {
		if !r.c.started {
			return
		}
		r.c.observers.each(func(sink ports.EventSink) { sink.PartialTranscript(transcript) })
	})
}

func (r recognitionEvents) OnError(code string) {
	r.c.loop.post(func() { r.c.handleRecognitionError(code) })
}

func (r recognitionEvents) OnListeningStarted() {
	r.c.loop.post(func() { r.c.handleListening(r.epoch, true) })
}

func (r recognitionEvents) OnListeningStopped() {
	r.c.loop.post(func() { r.c.handleListening(r.epoch, false) })
}
