package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/zenite-os/zenite/internal/services/netlink/archive"
	"github.com/zenite-os/zenite/internal/services/netlink/auth"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	"github.com/zenite-os/zenite/internal/services/netlink/realtime"
	"github.com/zenite-os/zenite/internal/services/netlink/storage/sqlite"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "netlink.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	bus := realtime.NewMemoryBus()
	tokens, err := auth.NewTokens(auth.TokenConfig{Secret: []byte(testSecret)})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	handler, err := NewHandler(HandlerConfig{
		Store:   store,
		Bus:     bus,
		Archive: archive.New(nil, nil),
		Tokens:  tokens,
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		_ = bus.Close()
		_ = store.Close()
	})
	return srv
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c client) do(method, path string, body any, headers ...string) (*http.Response, []byte) {
	c.t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (c client) expect(method, path string, body any, status int, out any) {
	c.t.Helper()
	resp, data := c.do(method, path, body)
	if resp.StatusCode != status {
		c.t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, status, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			c.t.Fatalf("decode %s: %v", data, err)
		}
	}
}

func expectErrorCode(t *testing.T, data []byte, code string) {
	t.Helper()
	var body contract.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode error body %s: %v", data, err)
	}
	if body.Error.Code != code {
		t.Fatalf("error code %q, want %q (%s)", body.Error.Code, code, body.Error.Message)
	}
}

func signUp(t *testing.T, srv *httptest.Server, username string) client {
	t.Helper()
	anon := client{t: t, base: srv.URL}
	var session contract.Session
	anon.expect(http.MethodPost, "/auth/signup", contract.Credentials{Username: username, Password: "correct horse"}, http.StatusCreated, &session)
	if session.Token == "" || session.Username != username {
		t.Fatalf("unexpected session %+v", session)
	}
	return client{t: t, base: srv.URL, token: session.Token}
}

func sheet(id string) string {
	return fmt.Sprintf(`{"id":%q,"name":"Nova","archetype":"speedster","level":1,
		"attributes":{"strength":1,"agility":3,"intellect":1,"willpower":1,"presence":1}}`, id)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	client{t: t, base: srv.URL}.expect(http.MethodGet, "/healthz", nil, http.StatusOK, nil)
}

func TestAuthFlows(t *testing.T) {
	srv := newTestServer(t)
	anon := client{t: t, base: srv.URL}

	resp, data := anon.do(http.MethodGet, "/characters", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
	expectErrorCode(t, data, "AUTH_REQUIRED")

	signUp(t, srv, "morgana")
	resp, data = anon.do(http.MethodPost, "/auth/signup", contract.Credentials{Username: "morgana", Password: "correct horse"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup status %d", resp.StatusCode)
	}
	expectErrorCode(t, data, "AUTH_USERNAME_TAKEN")

	resp, data = anon.do(http.MethodPost, "/auth/login", contract.Credentials{Username: "morgana", Password: "wrong pass"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status %d", resp.StatusCode)
	}
	expectErrorCode(t, data, "AUTH_INVALID_CREDENTIAL")

	var session contract.Session
	anon.expect(http.MethodPost, "/auth/login", contract.Credentials{Username: "MORGANA", Password: "correct horse"}, http.StatusOK, &session)

	authed := client{t: t, base: srv.URL, token: session.Token}
	var whoami contract.Session
	authed.expect(http.MethodGet, "/auth/session", nil, http.StatusOK, &whoami)
	if whoami.Username != "morgana" || whoami.Guest {
		t.Fatalf("unexpected session %+v", whoami)
	}

	var guest contract.Session
	anon.expect(http.MethodPost, "/auth/guest", nil, http.StatusCreated, &guest)
	if !guest.Guest || !strings.HasPrefix(guest.Username, "guest_") {
		t.Fatalf("unexpected guest %+v", guest)
	}
	guestClient := client{t: t, base: srv.URL, token: guest.Token}
	resp, data = guestClient.do(http.MethodPost, "/campaigns", contract.CreateCampaignRequest{Name: "Nope"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("guest campaign status %d", resp.StatusCode)
	}
	expectErrorCode(t, data, "AUTH_GUEST_FORBIDDEN")
}

func TestErrorsAreLocalized(t *testing.T) {
	srv := newTestServer(t)
	anon := client{t: t, base: srv.URL}

	_, english := anon.do(http.MethodGet, "/characters", nil)
	_, portuguese := anon.do(http.MethodGet, "/characters", nil, "Accept-Language", "pt-BR,pt;q=0.9")

	var en, pt contract.ErrorResponse
	if err := json.Unmarshal(english, &en); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(portuguese, &pt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if en.Error.Message == "" || en.Error.Message == pt.Error.Message {
		t.Fatalf("expected distinct localized messages, got %q and %q", en.Error.Message, pt.Error.Message)
	}
}

func TestProfileAndCharacters(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")

	var entry contract.ProfileEntry
	alice.expect(http.MethodPut, "/profile/settings", `{"volume":0.5}`, http.StatusOK, &entry)
	alice.expect(http.MethodGet, "/profile/settings", nil, http.StatusOK, &entry)
	if string(entry.Value) != `{"volume":0.5}` {
		t.Fatalf("unexpected value %s", entry.Value)
	}
	alice.expect(http.MethodDelete, "/profile/settings", nil, http.StatusNoContent, nil)
	alice.expect(http.MethodGet, "/profile/settings", nil, http.StatusNotFound, nil)

	var c contract.Character
	alice.expect(http.MethodPut, "/characters/char-1", sheet("char-1"), http.StatusOK, &c)
	if c.ID != "char-1" {
		t.Fatalf("unexpected character %+v", c)
	}
	resp, data := alice.do(http.MethodPut, "/characters/char-2", `{"id":"char-2"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid sheet status %d", resp.StatusCode)
	}
	expectErrorCode(t, data, "CHARACTER_SHEET_INVALID")

	resp, data = alice.do(http.MethodPut, "/characters/char-1/archive", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("archive status %d", resp.StatusCode)
	}
	expectErrorCode(t, data, "ARCHIVE_DISABLED")

	var list []contract.Character
	alice.expect(http.MethodGet, "/characters", nil, http.StatusOK, &list)
	if len(list) != 1 {
		t.Fatalf("expected one character, got %d", len(list))
	}
	alice.expect(http.MethodDelete, "/characters/char-1", nil, http.StatusNoContent, nil)
}

func TestCampaignFlow(t *testing.T) {
	srv := newTestServer(t)
	gm := signUp(t, srv, "morgana")
	alice := signUp(t, srv, "alice")

	var created contract.Campaign
	gm.expect(http.MethodPost, "/campaigns", contract.CreateCampaignRequest{Name: "Neon Nights"}, http.StatusCreated, &created)
	if len(created.InviteCode) != 6 || created.Role != "gm" {
		t.Fatalf("unexpected campaign %+v", created)
	}
	notes := "villain reveal in act two"
	gm.expect(http.MethodPatch, "/campaigns/"+created.ID, contract.UpdateCampaignRequest{Notes: &notes}, http.StatusOK, nil)

	resp, data := alice.do(http.MethodPost, "/campaigns/join", contract.JoinRequest{Code: created.InviteCode})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("join without character status %d", resp.StatusCode)
	}
	expectErrorCode(t, data, "CHARACTER_REQUIRED")

	alice.expect(http.MethodPut, "/characters/char-1", sheet("char-1"), http.StatusOK, nil)
	var joined contract.JoinResponse
	alice.expect(http.MethodPost, "/campaigns/join", contract.JoinRequest{Code: strings.ToLower(created.InviteCode), CharacterID: "char-1"}, http.StatusOK, &joined)
	if joined.Member.Status != "active" || joined.Campaign.Notes != "" {
		t.Fatalf("unexpected join %+v", joined)
	}

	var seen contract.Campaign
	alice.expect(http.MethodGet, "/campaigns/"+created.ID, nil, http.StatusOK, &seen)
	if seen.Notes != "" {
		t.Fatalf("player saw notes %q", seen.Notes)
	}
	resp, data = alice.do(http.MethodPatch, "/campaigns/"+created.ID, contract.UpdateCampaignRequest{Notes: &notes})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("player notes status %d", resp.StatusCode)
	}
	expectErrorCode(t, data, "CAMPAIGN_GM_REQUIRED")

	var members []contract.Member
	alice.expect(http.MethodGet, "/campaigns/"+created.ID+"/members", nil, http.StatusOK, &members)
	if len(members) != 2 {
		t.Fatalf("expected two members, got %d", len(members))
	}

	var roll contract.DiceRoll
	alice.expect(http.MethodPost, "/campaigns/"+created.ID+"/rolls", contract.RollRequest{
		Formula: "D20+1", Dice: []int{12}, Natural: 12, Modifier: 1, Total: 13,
	}, http.StatusCreated, &roll)
	if roll.Total != 13 || roll.SenderName != "alice" {
		t.Fatalf("unexpected roll %+v", roll)
	}
	var rolls []contract.DiceRoll
	gm.expect(http.MethodGet, "/campaigns/"+created.ID+"/rolls?limit=10", nil, http.StatusOK, &rolls)
	if len(rolls) != 1 || rolls[0].ID != roll.ID {
		t.Fatalf("unexpected rolls %+v", rolls)
	}

	gm.expect(http.MethodPost, "/campaigns/"+created.ID+"/messages", contract.ChatRequest{Body: "welcome"}, http.StatusCreated, nil)
	var messages []contract.ChatMessage
	alice.expect(http.MethodGet, "/campaigns/"+created.ID+"/messages", nil, http.StatusOK, &messages)
	if len(messages) != 1 || messages[0].Body != "welcome" {
		t.Fatalf("unexpected messages %+v", messages)
	}

	kicked := "kicked"
	gm.expect(http.MethodPatch, "/campaigns/"+created.ID+"/members/"+joined.Member.UserID, contract.UpdateMemberRequest{Status: &kicked}, http.StatusOK, nil)
	resp, data = alice.do(http.MethodGet, "/campaigns/"+created.ID+"/messages", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("kicked member status %d", resp.StatusCode)
	}
	expectErrorCode(t, data, "CAMPAIGN_MEMBER_KICKED")

	gm.expect(http.MethodDelete, "/campaigns/"+created.ID, nil, http.StatusNoContent, nil)
	var list []contract.Campaign
	gm.expect(http.MethodGet, "/campaigns", nil, http.StatusOK, &list)
	if len(list) != 0 {
		t.Fatalf("expected no campaigns, got %+v", list)
	}
}

func TestBadRequestBody(t *testing.T) {
	srv := newTestServer(t)
	gm := signUp(t, srv, "morgana")
	resp, data := gm.do(http.MethodPost, "/campaigns", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	expectErrorCode(t, data, codeInvalidRequest)
}

func TestRealtimeReceivesWrites(t *testing.T) {
	srv := newTestServer(t)
	gm := signUp(t, srv, "morgana")

	var created contract.Campaign
	gm.expect(http.MethodPost, "/campaigns", contract.CreateCampaignRequest{Name: "Neon Nights"}, http.StatusCreated, &created)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, srv.URL)
	if err != nil {
		t.Fatalf("ws config: %v", err)
	}
	cfg.Header = make(http.Header)
	cfg.Header.Set("Authorization", "Bearer "+gm.token)
	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload, _ := json.Marshal(realtime.SubscribePayload{CampaignID: created.ID})
	if err := json.NewEncoder(conn).Encode(realtime.Frame{Type: realtime.FrameSubscribe, RequestID: "r1", Payload: payload}); err != nil {
		t.Fatalf("send subscribe: %v", err)
	}
	decoder := json.NewDecoder(conn)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame realtime.Frame
	if err := decoder.Decode(&frame); err != nil {
		t.Fatalf("read subscribed: %v", err)
	}
	if frame.Type != realtime.FrameSubscribed {
		t.Fatalf("expected subscribed, got %s: %s", frame.Type, frame.Payload)
	}

	gm.expect(http.MethodPost, "/campaigns/"+created.ID+"/messages", contract.ChatRequest{Body: "live"}, http.StatusCreated, nil)

	if err := decoder.Decode(&frame); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if frame.Type != realtime.FrameChange {
		t.Fatalf("expected change, got %s", frame.Type)
	}
	var change realtime.ChangePayload
	if err := json.Unmarshal(frame.Payload, &change); err != nil {
		t.Fatalf("decode change: %v", err)
	}
	if change.Table != string(realtime.StreamChatMessages) || change.Type != string(realtime.OpInsert) {
		t.Fatalf("unexpected change %+v", change)
	}
}

func TestNewServerRequiresSecret(t *testing.T) {
	_, err := NewServer(context.Background(), Config{HTTPAddr: ":0", DBPath: filepath.Join(t.TempDir(), "n.db")})
	if err == nil {
		t.Fatal("expected missing secret error")
	}
}
