package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/zenite-os/zenite/internal/campaign"
	"github.com/zenite-os/zenite/internal/campaign/policy"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/platform/requestctx"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	codeInvalidArgument   = "INVALID_ARGUMENT"
	codeResourceExhausted = "RESOURCE_EXHAUSTED"
	codeUnavailable       = "UNAVAILABLE"
)

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// MemberLookup loads a user's membership row.
type MemberLookup interface {
	GetMember(ctx context.Context, campaignID, userID string) (campaign.Member, error)
}

// HubConfig wires a Hub.
type HubConfig struct {
	Bus     Bus
	Auth    Authenticator
	Members MemberLookup
	Policy  *policy.Enforcer
	Logger  logging.Logger
	Now     func() time.Time
}

// Hub serves the /ws endpoint.
type Hub struct {
	bus     Bus
	auth    Authenticator
	members MemberLookup
	policy  *policy.Enforcer
	logger  logging.Logger
	now     func() time.Time
}

// NewHub validates cfg and returns a Hub.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Bus == nil {
		return nil, errors.New("realtime bus is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Members == nil {
		return nil, errors.New("member lookup is required")
	}
	if cfg.Policy == nil {
		enforcer, err := policy.Default()
		if err != nil {
			return nil, err
		}
		cfg.Policy = enforcer
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hub{
		bus:     cfg.Bus,
		auth:    cfg.Auth,
		members: cfg.Members,
		policy:  cfg.Policy,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}, nil
}

// ServeHTTP authenticates the upgrade request and runs the frame loop.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := TokenFromRequest(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	userID, err := h.auth.Authenticate(r.Context(), token)
	if err != nil || strings.TrimSpace(userID) == "" {
		h.logger.Info("websocket unauthorized", logging.Fields{"remote": r.RemoteAddr})
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	r = r.WithContext(requestctx.WithIdentity(r.Context(), requestctx.Identity{UserID: strings.TrimSpace(userID)}))

	websocket.Server{Handler: h.handleConn}.ServeHTTP(w, r)
}

// TokenFromRequest reads a bearer token from the Authorization header or the
// access_token query parameter.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func (h *Hub) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := conn.Request().Context()
	userID := requestctx.UserIDFromContext(ctx)
	session := &wsSession{
		hub:    h,
		userID: userID,
		peer:   &wsPeer{encoder: json.NewEncoder(conn)},
		logger: h.logger.With(logging.Fields{"user_id": userID}),
	}
	defer session.unsubscribe()

	decoder := json.NewDecoder(conn)
	windowStart := h.now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = session.peer.writeError("", codeInvalidArgument, "invalid frame payload", false)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = session.peer.writeError(frame.RequestID, codeInvalidArgument, "payload too large", false)
			continue
		}

		now := h.now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = session.peer.writeError(frame.RequestID, codeResourceExhausted, "rate limit exceeded", true)
			return
		}

		switch frame.Type {
		case FrameSubscribe:
			session.handleSubscribe(ctx, frame)
		case FrameUnsubscribe:
			session.unsubscribe()
		case FrameBroadcast:
			session.handleBroadcast(ctx, frame)
		case FramePing:
			_ = session.peer.writeFrame(Frame{Type: FramePong, RequestID: frame.RequestID})
		default:
			_ = session.peer.writeError(frame.RequestID, codeInvalidArgument, "unsupported frame type", false)
		}
	}
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func (p *wsPeer) writeFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

func (p *wsPeer) writeError(requestID, code, message string, retryable bool) error {
	body, err := json.Marshal(ErrorEnvelope{Error: ErrorBody{Code: code, Message: message, Retryable: retryable}})
	if err != nil {
		return err
	}
	return p.writeFrame(Frame{Type: FrameError, RequestID: requestID, Payload: body})
}

func (p *wsPeer) writePayload(frameType, requestID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writeFrame(Frame{Type: frameType, RequestID: requestID, Payload: body})
}

type wsSession struct {
	hub    *Hub
	userID string
	peer   *wsPeer
	logger logging.Logger

	mu         sync.Mutex
	campaignID string
	sub        Subscription
}

func (s *wsSession) handleSubscribe(ctx context.Context, frame Frame) {
	var payload SubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = s.peer.writeError(frame.RequestID, codeInvalidArgument, "invalid subscribe payload", false)
		return
	}
	campaignID := strings.TrimSpace(payload.CampaignID)
	if campaignID == "" {
		_ = s.peer.writeError(frame.RequestID, codeInvalidArgument, "campaign_id is required", false)
		return
	}
	if _, err := s.authorize(ctx, campaignID, policy.ObjectCampaign, policy.ActionRead); err != nil {
		_ = s.peer.writeError(frame.RequestID, string(apperrors.GetCode(err)), err.Error(), false)
		return
	}

	sub, err := s.hub.bus.Subscribe(ctx, campaignID)
	if err != nil {
		s.logger.Error("subscribe campaign channel", err, logging.Fields{"campaign_id": campaignID})
		_ = s.peer.writeError(frame.RequestID, codeUnavailable, "realtime channel unavailable", true)
		return
	}

	s.mu.Lock()
	previous := s.sub
	s.campaignID = campaignID
	s.sub = sub
	s.mu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}

	_ = s.peer.writePayload(FrameSubscribed, frame.RequestID, SubscribedPayload{
		CampaignID: campaignID,
		ServerTime: s.hub.now().UTC().Format(time.RFC3339),
	})
	go s.forward(campaignID, sub)
}

func (s *wsSession) handleBroadcast(ctx context.Context, frame Frame) {
	var payload BroadcastPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = s.peer.writeError(frame.RequestID, codeInvalidArgument, "invalid broadcast payload", false)
		return
	}
	campaignID := strings.TrimSpace(payload.CampaignID)
	if campaignID == "" || campaignID != s.currentCampaign() {
		_ = s.peer.writeError(frame.RequestID, codeInvalidArgument, "broadcast requires an active subscription", false)
		return
	}
	event, err := ParseBroadcastEvent(payload.Event)
	if err != nil {
		_ = s.peer.writeError(frame.RequestID, codeInvalidArgument, err.Error(), false)
		return
	}
	if _, err := s.authorize(ctx, campaignID, policy.ObjectBroadcast, policy.ActionWrite); err != nil {
		_ = s.peer.writeError(frame.RequestID, string(apperrors.GetCode(err)), err.Error(), false)
		return
	}
	if err := s.hub.bus.Publish(ctx, NewBroadcast(campaignID, event, s.userID, payload.Payload, s.hub.now())); err != nil {
		s.logger.Error("publish broadcast", err, logging.Fields{"campaign_id": campaignID, "event": string(event)})
		_ = s.peer.writeError(frame.RequestID, codeUnavailable, "broadcast failed", true)
	}
}

func (s *wsSession) authorize(ctx context.Context, campaignID string, obj policy.Object, act policy.Action) (campaign.Member, error) {
	member, err := s.hub.members.GetMember(ctx, campaignID, s.userID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return campaign.Member{}, campaign.ErrNotMember
		}
		return campaign.Member{}, err
	}
	if err := s.hub.policy.Authorize(member, obj, act); err != nil {
		return campaign.Member{}, err
	}
	return member, nil
}

// forward relays bus events until the subscription closes. A change removing
// this user from the campaign ends the subscription.
func (s *wsSession) forward(campaignID string, sub Subscription) {
	for event := range sub.Events() {
		if event.CampaignID != campaignID {
			continue
		}
		frame, err := FrameForEvent(event)
		if err != nil {
			s.logger.Error("render event frame", err, logging.Fields{"campaign_id": campaignID})
			continue
		}
		if err := s.peer.writeFrame(frame); err != nil {
			_ = sub.Close()
			return
		}
		if s.removedBy(event) {
			_ = s.peer.writeError("", string(apperrors.CodeCampaignMemberKicked), "membership ended", false)
			s.closeIfCurrent(sub)
			return
		}
	}
}

func (s *wsSession) removedBy(event Event) bool {
	if event.Kind != KindChange || event.Stream != StreamCampaignMembers {
		return false
	}
	var row struct {
		UserID string `json:"user_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(event.Record, &row); err != nil || row.UserID != s.userID {
		return false
	}
	return event.Op == OpDelete || row.Status == string(campaign.StatusKicked)
}

func (s *wsSession) currentCampaign() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaignID
}

func (s *wsSession) closeIfCurrent(sub Subscription) {
	s.mu.Lock()
	if s.sub == sub {
		s.sub = nil
		s.campaignID = ""
	}
	s.mu.Unlock()
	_ = sub.Close()
}

func (s *wsSession) unsubscribe() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.campaignID = ""
	s.mu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}
}
