// Package realtime keeps the client subscribed to the active campaign's
// NetLink channel and reconnects it when the channel fails.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/platform/timeouts"
	wire "github.com/zenite-os/zenite/internal/services/netlink/realtime"
)

// Status is the lifecycle state of a channel.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

const (
	// MaxRetries is how many reconnects follow a failure before giving up.
	MaxRetries = 3
	// RetryStep is multiplied by the attempt number to get the retry delay.
	RetryStep = 2 * time.Second
)

var (
	// ErrNotSubscribed is returned by Broadcast without a live subscription.
	ErrNotSubscribed = apperrors.New(apperrors.CodeRealtimeUnavailable, "realtime channel is not subscribed")

	errSubscribeTimeout = errors.New("subscribe acknowledgement timed out")
)

// Change is a row-level change on one of the campaign streams.
type Change struct {
	CampaignID string
	Stream     wire.Stream
	Op         wire.Op
	Record     json.RawMessage
	CommitAt   time.Time
}

// Broadcast is an ad-hoc event sent by the GM.
type Broadcast struct {
	CampaignID string
	Event      wire.BroadcastEvent
	SenderID   string
	Payload    json.RawMessage
}

// Handlers receive channel events. Nil handlers are skipped. Handlers run
// on the channel goroutine and must not block.
type Handlers struct {
	OnChange     func(Change)
	OnBroadcast  func(Broadcast)
	OnStatus     func(campaignID string, status Status)
	OnSubscribed func(campaignID string)
	OnGiveUp     func(campaignID string, err error)
	OnError      func(campaignID string, err error)
}

// Config wires a Manager.
type Config struct {
	Dialer           Dialer
	Handlers         Handlers
	Logger           logging.Logger
	SubscribeTimeout time.Duration
	// Sleep waits between retries; it returns early with ctx.Err().
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager owns at most one campaign subscription at a time.
type Manager struct {
	dialer           Dialer
	handlers         Handlers
	logger           logging.Logger
	subscribeTimeout time.Duration
	sleep            func(context.Context, time.Duration) error

	mu         sync.Mutex
	generation uint64
	campaignID string
	status     Status
	channel    Channel
	subscribed bool
	cancel     context.CancelFunc
	done       chan struct{}
	requestSeq uint64
}

// NewManager validates cfg.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("realtime dialer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = timeouts.RealtimeSubscribe
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Manager{
		dialer:           cfg.Dialer,
		handlers:         cfg.Handlers,
		logger:           cfg.Logger,
		subscribeTimeout: cfg.SubscribeTimeout,
		sleep:            cfg.Sleep,
		status:           StatusClosed,
	}, nil
}

// Enter subscribes to campaignID, tearing down any other subscription. It
// returns immediately; progress is reported through the handlers. Entering
// the campaign that is already live is a no-op.
func (m *Manager) Enter(ctx context.Context, campaignID string) error {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return errors.New("campaign id is required")
	}
	if m.running(campaignID) {
		return nil
	}
	m.Leave()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.campaignID = campaignID
	m.status = StatusClosed
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.run(runCtx, gen, campaignID)
	}()
	return nil
}

// Leave ends the current subscription, if any.
func (m *Manager) Leave() {
	m.mu.Lock()
	campaignID := m.campaignID
	cancel := m.cancel
	channel := m.channel
	m.generation++
	m.campaignID = ""
	m.channel = nil
	m.subscribed = false
	m.cancel = nil
	m.done = nil
	m.status = StatusClosed
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if channel != nil {
		_ = channel.Close()
	}
	if campaignID != "" && m.handlers.OnStatus != nil {
		m.handlers.OnStatus(campaignID, StatusClosed)
	}
}

// Active returns the campaign currently entered.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaignID
}

// Status returns the status of the current channel.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Broadcast sends an ad-hoc event to the active campaign. The server rejects
// senders who are not the GM.
func (m *Manager) Broadcast(event wire.BroadcastEvent, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode broadcast payload: %w", err)
	}

	m.mu.Lock()
	channel := m.channel
	campaignID := m.campaignID
	subscribed := m.subscribed
	m.requestSeq++
	requestID := "bc-" + strconv.FormatUint(m.requestSeq, 10)
	m.mu.Unlock()
	if channel == nil || !subscribed {
		return ErrNotSubscribed
	}

	frame, err := encodeFrame(wire.FrameBroadcast, requestID, wire.BroadcastPayload{
		CampaignID: campaignID,
		Event:      string(event),
		Payload:    body,
	})
	if err != nil {
		return err
	}
	if err := channel.Send(frame); err != nil {
		return apperrors.Wrap(apperrors.CodeRealtimeUnavailable, "send broadcast", err)
	}
	return nil
}

func (m *Manager) running(campaignID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.campaignID != campaignID || m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// run owns the reconnect loop for one Enter call.
func (m *Manager) run(ctx context.Context, gen uint64, campaignID string) {
	attempts := 0
	for {
		err := m.session(ctx, gen, campaignID, &attempts)
		if ctx.Err() != nil {
			return
		}
		status := StatusChannelError
		if errors.Is(err, errSubscribeTimeout) {
			status = StatusTimedOut
		}
		m.setStatus(gen, campaignID, status)
		m.logger.Warn("realtime channel failed", logging.Fields{
			"campaign_id": campaignID,
			"status":      string(status),
			"attempt":     attempts,
			"error":       errString(err),
		})

		var fatal *fatalError
		if attempts >= MaxRetries || errors.As(err, &fatal) {
			m.giveUp(gen, campaignID, err)
			return
		}
		attempts++
		if err := m.sleep(ctx, time.Duration(attempts)*RetryStep); err != nil {
			return
		}
	}
}

// session dials, subscribes and pumps frames until the channel fails.
func (m *Manager) session(ctx context.Context, gen uint64, campaignID string, attempts *int) error {
	channel, err := m.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	if !m.attach(gen, channel) {
		_ = channel.Close()
		return ctx.Err()
	}
	defer m.detach(gen, channel)

	subscribeID := fmt.Sprintf("sub-%d", gen)
	frame, err := encodeFrame(wire.FrameSubscribe, subscribeID, wire.SubscribePayload{CampaignID: campaignID})
	if err != nil {
		return err
	}

	frames := make(chan wire.Frame)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			f, err := channel.Receive()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-stop:
				return
			}
		}
	}()

	if err := channel.Send(frame); err != nil {
		return err
	}

	timer := time.NewTimer(m.subscribeTimeout)
	defer timer.Stop()
	timeout := timer.C

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errSubscribeTimeout
		case err := <-readErr:
			return err
		case f := <-frames:
			switch f.Type {
			case wire.FrameSubscribed:
				timer.Stop()
				timeout = nil
				*attempts = 0
				if m.markSubscribed(gen) {
					m.setStatus(gen, campaignID, StatusSubscribed)
					if m.handlers.OnSubscribed != nil {
						m.handlers.OnSubscribed(campaignID)
					}
				}
			case wire.FrameChange:
				m.dispatchChange(gen, campaignID, f)
			case wire.FrameBroadcast:
				m.dispatchBroadcast(gen, campaignID, f)
			case wire.FrameError:
				if err := m.handleError(gen, campaignID, subscribeID, f); err != nil {
					return err
				}
			}
		}
	}
}

func (m *Manager) dispatchChange(gen uint64, campaignID string, f wire.Frame) {
	var payload wire.ChangePayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		m.logger.Warn("drop malformed change frame", logging.Fields{"campaign_id": campaignID})
		return
	}
	if payload.CampaignID != campaignID || !m.current(gen) || m.handlers.OnChange == nil {
		return
	}
	commitAt, _ := time.Parse(time.RFC3339Nano, payload.CommitAt)
	m.handlers.OnChange(Change{
		CampaignID: payload.CampaignID,
		Stream:     wire.Stream(payload.Table),
		Op:         wire.Op(payload.Type),
		Record:     payload.Record,
		CommitAt:   commitAt,
	})
}

func (m *Manager) dispatchBroadcast(gen uint64, campaignID string, f wire.Frame) {
	var payload wire.BroadcastPayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		m.logger.Warn("drop malformed broadcast frame", logging.Fields{"campaign_id": campaignID})
		return
	}
	if payload.CampaignID != campaignID || !m.current(gen) || m.handlers.OnBroadcast == nil {
		return
	}
	m.handlers.OnBroadcast(Broadcast{
		CampaignID: payload.CampaignID,
		Event:      wire.BroadcastEvent(payload.Event),
		SenderID:   payload.SenderID,
		Payload:    payload.Payload,
	})
}

// handleError returns a non-nil error when the frame ends the session.
// Errors answering a broadcast are reported without touching the channel.
func (m *Manager) handleError(gen uint64, campaignID, subscribeID string, f wire.Frame) error {
	var envelope wire.ErrorEnvelope
	_ = json.Unmarshal(f.Payload, &envelope)
	err := apperrors.New(apperrors.Code(envelope.Error.Code), envelope.Error.Message)
	if f.RequestID != "" && f.RequestID != subscribeID {
		if m.current(gen) && m.handlers.OnError != nil {
			m.handlers.OnError(campaignID, err)
		}
		return nil
	}
	if envelope.Error.Retryable {
		return err
	}
	return &fatalError{err: err}
}

func (m *Manager) attach(gen uint64, channel Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return false
	}
	m.channel = channel
	m.subscribed = false
	return true
}

func (m *Manager) detach(gen uint64, channel Channel) {
	m.mu.Lock()
	if m.generation == gen && m.channel == channel {
		m.channel = nil
		m.subscribed = false
	}
	m.mu.Unlock()
	_ = channel.Close()
}

func (m *Manager) markSubscribed(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return false
	}
	m.subscribed = true
	return true
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen
}

func (m *Manager) setStatus(gen uint64, campaignID string, status Status) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.status = status
	m.mu.Unlock()
	if m.handlers.OnStatus != nil {
		m.handlers.OnStatus(campaignID, status)
	}
}

func (m *Manager) giveUp(gen uint64, campaignID string, err error) {
	if !m.current(gen) {
		return
	}
	m.logger.Error("realtime channel gave up", err, logging.Fields{"campaign_id": campaignID})
	if m.handlers.OnGiveUp != nil {
		m.handlers.OnGiveUp(campaignID, err)
	}
}

// fatalError marks a rejection that retrying cannot fix.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func encodeFrame(frameType, requestID string, payload any) (wire.Frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return wire.Frame{}, fmt.Errorf("encode %s: %w", frameType, err)
	}
	return wire.Frame{Type: frameType, RequestID: requestID, Payload: body}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
