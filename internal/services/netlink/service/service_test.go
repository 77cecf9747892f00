package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	glebarez "github.com/glebarez/sqlite"
	"github.com/zenite-os/zenite/internal/campaign"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	"github.com/zenite-os/zenite/internal/services/netlink/realtime"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
	"github.com/zenite-os/zenite/internal/services/netlink/storage/gormstore"
	"github.com/zenite-os/zenite/internal/services/netlink/storage/sqlite"
	"github.com/zenite-os/zenite/internal/services/netlink/user"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)

type fixedSource struct{ value int }

func (s fixedSource) IntN(n int) (int, error) {
	if s.value >= n {
		return n - 1, nil
	}
	return s.value, nil
}

type harness struct {
	svc   *Service
	store storage.Store
	bus   *realtime.MemoryBus
	now   time.Time
	gm    Caller
	alice Caller
	guest Caller
}

type backend struct {
	name string
	open func(t *testing.T) storage.Store
}

var backends = []backend{
	{name: "sqlite", open: openSQLiteStore},
	{name: "gorm", open: openGormStore},
}

func openSQLiteStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "netlink.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func openGormStore(t *testing.T) storage.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "netlink.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := gorm.Open(glebarez.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	store, err := gormstore.New(db)
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, openSQLiteStore(t))
}

func newHarnessWith(t *testing.T, store storage.Store) *harness {
	t.Helper()
	bus := realtime.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })

	h := &harness{store: store, bus: bus, now: baseTime}
	seq := 0
	svc, err := New(Config{
		Store:  store,
		Bus:    bus,
		Random: fixedSource{value: 3},
		Now:    func() time.Time { return h.now },
		NewID: func() (string, error) {
			seq++
			return fmt.Sprintf("id-%03d", seq), nil
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc

	h.gm = h.putUser(t, "gm-1", "morgana", false)
	h.alice = h.putUser(t, "user-alice", "alice", false)
	h.guest = h.putUser(t, "guest-1", "guest_abcdefgh", true)
	return h
}

func (h *harness) putUser(t *testing.T, id, username string, guest bool) Caller {
	t.Helper()
	u := user.User{ID: id, Username: username, Guest: guest, CreatedAt: baseTime, UpdatedAt: baseTime}
	if err := h.store.PutUser(context.Background(), u); err != nil {
		t.Fatalf("put user: %v", err)
	}
	return Caller{UserID: id, Username: username, Guest: guest}
}

func sheetJSON(id, name string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"archetype": "brawler",
		"level": 1,
		"attributes": {"strength": 3, "agility": 1, "intellect": 0, "willpower": 2, "presence": 1}
	}`, id, name))
}

func (h *harness) putCharacter(t *testing.T, caller Caller, id string) contract.Character {
	t.Helper()
	c, err := h.svc.PutCharacter(context.Background(), caller, id, sheetJSON(id, "Nova"))
	if err != nil {
		t.Fatalf("put character: %v", err)
	}
	return c
}

func (h *harness) createCampaign(t *testing.T, settings string) contract.Campaign {
	t.Helper()
	req := contract.CreateCampaignRequest{Name: "Neon Nights"}
	if settings != "" {
		req.Settings = json.RawMessage(settings)
	}
	c, err := h.svc.CreateCampaign(context.Background(), h.gm, req)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func (h *harness) join(t *testing.T, caller Caller, code, characterID string) contract.JoinResponse {
	t.Helper()
	resp, err := h.svc.JoinByCode(context.Background(), caller, contract.JoinRequest{Code: code, CharacterID: characterID})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return resp
}

func expectCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := apperrors.GetCode(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func receive(t *testing.T, sub realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return realtime.Event{}
	}
}

func TestNewRequiresStoreAndBus(t *testing.T) {
	if _, err := New(Config{Bus: realtime.NewMemoryBus()}); err == nil {
		t.Fatal("expected store error")
	}
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "netlink.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := New(Config{Store: store}); err == nil {
		t.Fatal("expected bus error")
	}
}

func TestProfileEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entry, err := h.svc.PutProfile(ctx, h.alice, " Theme ", json.RawMessage(`{"accent":"cyan"}`))
	if err != nil {
		t.Fatalf("put profile: %v", err)
	}
	if entry.Key != "theme" {
		t.Fatalf("expected normalized key, got %q", entry.Key)
	}
	got, err := h.svc.GetProfile(ctx, h.alice, "theme")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if string(got.Value) != `{"accent":"cyan"}` {
		t.Fatalf("unexpected value %s", got.Value)
	}

	_, err = h.svc.PutProfile(ctx, h.alice, "bad key!", json.RawMessage(`1`))
	expectCode(t, err, apperrors.CodeProfileKeyInvalid)
	_, err = h.svc.PutProfile(ctx, h.alice, "theme", json.RawMessage(`{not json`))
	expectCode(t, err, apperrors.CodeProfileKeyInvalid)

	if err := h.svc.DeleteProfile(ctx, h.alice, "theme"); err != nil {
		t.Fatalf("delete profile: %v", err)
	}
	_, err = h.svc.GetProfile(ctx, h.alice, "theme")
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestPutCharacterValidatesSheet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c := h.putCharacter(t, h.alice, "char-1")
	if c.Name != "Nova" || !c.UpdatedAt.Equal(baseTime) {
		t.Fatalf("unexpected character %+v", c)
	}

	_, err := h.svc.PutCharacter(ctx, h.alice, "char-2", sheetJSON("char-1", "Nova"))
	expectCode(t, err, apperrors.CodeCharacterSheetInvalid)

	_, err = h.svc.PutCharacter(ctx, h.alice, "char-3", json.RawMessage(`{"id":"char-3","name":"Nova"}`))
	expectCode(t, err, apperrors.CodeCharacterSheetInvalid)

	_, err = h.svc.PutCharacter(ctx, h.gm, "char-1", sheetJSON("char-1", "Stolen"))
	expectCode(t, err, apperrors.CodeNotFound)

	list, err := h.svc.ListCharacters(ctx, h.alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "char-1" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestArchiveDisabledByDefault(t *testing.T) {
	h := newHarness(t)
	h.putCharacter(t, h.alice, "char-1")
	_, err := h.svc.ArchiveCharacter(context.Background(), h.alice, "char-1")
	expectCode(t, err, apperrors.CodeArchiveDisabled)
}

func TestCreateCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateCampaign(ctx, h.guest, contract.CreateCampaignRequest{Name: "Nope"})
	expectCode(t, err, apperrors.CodeAuthGuestForbidden)

	_, err = h.svc.CreateCampaign(ctx, h.gm, contract.CreateCampaignRequest{Name: "  "})
	expectCode(t, err, apperrors.CodeCampaignNameEmpty)

	c := h.createCampaign(t, "")
	if c.Role != string(campaign.RoleGM) || c.Status != string(campaign.StatusActive) {
		t.Fatalf("unexpected role/status %q/%q", c.Role, c.Status)
	}
	if c.InviteCode != "DDDDDD" {
		t.Fatalf("expected invite code from fixed source, got %q", c.InviteCode)
	}
	if string(c.Settings) != string(campaign.DefaultSettings()) {
		t.Fatalf("expected default settings, got %s", c.Settings)
	}

	list, err := h.svc.ListCampaigns(ctx, h.gm)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != c.ID {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestCreateCampaignRetriesInviteCollision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createCampaign(t, "")

	// The fixed source always yields the same code.
	_, err := h.svc.CreateCampaign(ctx, h.gm, contract.CreateCampaignRequest{Name: "Second"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict after retries, got %v", err)
	}
}

func TestJoinByCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createCampaign(t, "")
	h.putCharacter(t, h.alice, "char-1")

	_, err := h.svc.JoinByCode(ctx, h.alice, contract.JoinRequest{Code: c.InviteCode})
	expectCode(t, err, apperrors.CodeCharacterRequired)
	_, err = h.svc.JoinByCode(ctx, h.alice, contract.JoinRequest{Code: "ab", CharacterID: "char-1"})
	expectCode(t, err, apperrors.CodeCampaignInviteInvalid)
	_, err = h.svc.JoinByCode(ctx, h.alice, contract.JoinRequest{Code: "ZZZZZZ", CharacterID: "char-1"})
	expectCode(t, err, apperrors.CodeCampaignInviteInvalid)
	_, err = h.svc.JoinByCode(ctx, h.alice, contract.JoinRequest{Code: c.InviteCode, CharacterID: "missing"})
	expectCode(t, err, apperrors.CodeCharacterRequired)

	sub, err := h.bus.Subscribe(ctx, c.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	resp := h.join(t, h.alice, " dddddd ", "char-1")
	if resp.Member.Status != string(campaign.StatusActive) || resp.Member.Role != string(campaign.RolePlayer) {
		t.Fatalf("unexpected member %+v", resp.Member)
	}
	if resp.Member.CharacterID != "char-1" || len(resp.Member.CharData) == 0 {
		t.Fatalf("expected character copy, got %+v", resp.Member)
	}
	event := receive(t, sub)
	if event.Stream != realtime.StreamCampaignMembers || event.Op != realtime.OpInsert {
		t.Fatalf("unexpected event %+v", event)
	}

	again := h.join(t, h.alice, c.InviteCode, "char-1")
	if !again.Member.JoinedAt.Equal(resp.Member.JoinedAt) {
		t.Fatal("rejoin should keep the original join time")
	}
	if event := receive(t, sub); event.Op != realtime.OpUpdate {
		t.Fatalf("expected update on rejoin, got %s", event.Op)
	}
}

func TestJoinRequiresApprovalAndRespectsCap(t *testing.T) {
	h := newHarness(t)
	c := h.createCampaign(t, `{"max_players":1,"require_approval":true}`)
	h.putCharacter(t, h.alice, "char-1")

	resp := h.join(t, h.alice, c.InviteCode, "char-1")
	if resp.Member.Status != string(campaign.StatusPending) {
		t.Fatalf("expected pending, got %s", resp.Member.Status)
	}
	// Pending members cannot read the log yet.
	_, err := h.svc.ListRolls(context.Background(), h.alice, c.ID, 0)
	expectCode(t, err, apperrors.CodeCampaignMemberRequired)

	active := "active"
	if _, err := h.svc.UpdateMember(context.Background(), h.gm, c.ID, h.alice.UserID, contract.UpdateMemberRequest{Status: &active}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	bob := h.putUser(t, "user-bob", "bob", false)
	h.putCharacter(t, bob, "char-bob")
	_, err = h.svc.JoinByCode(context.Background(), bob, contract.JoinRequest{Code: c.InviteCode, CharacterID: "char-bob"})
	expectCode(t, err, apperrors.CodeCampaignFull)
}

func TestNotesAreGMOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createCampaign(t, "")
	h.putCharacter(t, h.alice, "char-1")
	h.join(t, h.alice, c.InviteCode, "char-1")

	notes := "the mayor is the villain"
	updated, err := h.svc.UpdateCampaign(ctx, h.gm, c.ID, contract.UpdateCampaignRequest{Notes: &notes})
	if err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if updated.Notes != notes {
		t.Fatalf("gm should see notes, got %q", updated.Notes)
	}

	seen, err := h.svc.GetCampaign(ctx, h.alice, c.ID)
	if err != nil {
		t.Fatalf("get as player: %v", err)
	}
	if seen.Notes != "" {
		t.Fatalf("player saw notes %q", seen.Notes)
	}

	_, err = h.svc.UpdateCampaign(ctx, h.alice, c.ID, contract.UpdateCampaignRequest{Notes: &notes})
	expectCode(t, err, apperrors.CodeCampaignGMRequired)
	name := "Hijacked"
	_, err = h.svc.UpdateCampaign(ctx, h.alice, c.ID, contract.UpdateCampaignRequest{Name: &name})
	expectCode(t, err, apperrors.CodeCampaignGMRequired)

	_, err = h.svc.GetCampaign(ctx, h.guest, c.ID)
	expectCode(t, err, apperrors.CodeCampaignMemberRequired)
}

func TestUpdateCampaignPublishesRedactedRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createCampaign(t, "")
	sub, err := h.bus.Subscribe(ctx, c.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	notes := "secret"
	if _, err := h.svc.UpdateCampaign(ctx, h.gm, c.ID, contract.UpdateCampaignRequest{Notes: &notes}); err != nil {
		t.Fatalf("update: %v", err)
	}
	event := receive(t, sub)
	var record contract.Campaign
	if err := json.Unmarshal(event.Record, &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Notes != "" {
		t.Fatalf("published notes %q", record.Notes)
	}
}

func TestUpdateMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createCampaign(t, "")
	h.putCharacter(t, h.alice, "char-1")
	h.join(t, h.alice, c.InviteCode, "char-1")

	own := json.RawMessage(`{"hp":3}`)
	m, err := h.svc.UpdateMember(ctx, h.alice, c.ID, h.alice.UserID, contract.UpdateMemberRequest{CharData: own})
	if err != nil {
		t.Fatalf("update own data: %v", err)
	}
	if string(m.CharData) != `{"hp":3}` {
		t.Fatalf("unexpected char data %s", m.CharData)
	}

	kicked := "kicked"
	_, err = h.svc.UpdateMember(ctx, h.alice, c.ID, h.alice.UserID, contract.UpdateMemberRequest{Status: &kicked})
	expectCode(t, err, apperrors.CodeCampaignGMRequired)
	_, err = h.svc.UpdateMember(ctx, h.alice, c.ID, h.gm.UserID, contract.UpdateMemberRequest{CharData: own})
	expectCode(t, err, apperrors.CodeCampaignGMRequired)

	bogus := "banished"
	_, err = h.svc.UpdateMember(ctx, h.gm, c.ID, h.alice.UserID, contract.UpdateMemberRequest{Status: &bogus})
	expectCode(t, err, apperrors.CodeCampaignInvalidStatus)

	if _, err := h.svc.UpdateMember(ctx, h.gm, c.ID, h.alice.UserID, contract.UpdateMemberRequest{Status: &kicked}); err != nil {
		t.Fatalf("kick: %v", err)
	}
	_, err = h.svc.JoinByCode(ctx, h.alice, contract.JoinRequest{Code: c.InviteCode, CharacterID: "char-1"})
	expectCode(t, err, apperrors.CodeCampaignMemberKicked)

	list, err := h.svc.ListCampaigns(ctx, h.alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("kicked campaign should be hidden, got %+v", list)
	}
}

func TestAppendRoll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createCampaign(t, "")
	h.putCharacter(t, h.alice, "char-1")
	h.join(t, h.alice, c.InviteCode, "char-1")

	server, err := h.svc.AppendRoll(ctx, h.alice, c.ID, contract.RollRequest{Formula: "d20+2"})
	if err != nil {
		t.Fatalf("server roll: %v", err)
	}
	if server.Formula != "D20+2" || server.Natural != 4 || server.Total != 6 || server.SenderName != "alice" {
		t.Fatalf("unexpected server roll %+v", server)
	}

	client, err := h.svc.AppendRoll(ctx, h.alice, c.ID, contract.RollRequest{
		Formula: "2D6-1", SenderName: "Nova", Dice: []int{5, 6}, Natural: 11, Modifier: -1, Total: 10,
	})
	if err != nil {
		t.Fatalf("client roll: %v", err)
	}
	if client.SenderName != "Nova" || client.Total != 10 {
		t.Fatalf("unexpected client roll %+v", client)
	}

	tests := []struct {
		name string
		req  contract.RollRequest
	}{
		{name: "bad formula", req: contract.RollRequest{Formula: "roll"}},
		{name: "wrong dice count", req: contract.RollRequest{Formula: "2D6", Dice: []int{3}, Natural: 3, Total: 3}},
		{name: "die out of range", req: contract.RollRequest{Formula: "D6", Dice: []int{7}, Natural: 7, Total: 7}},
		{name: "forged total", req: contract.RollRequest{Formula: "D20", Dice: []int{3}, Natural: 3, Total: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.AppendRoll(ctx, h.alice, c.ID, tt.req)
			expectCode(t, err, apperrors.CodeDiceFormulaInvalid)
		})
	}

	rolls, err := h.svc.ListRolls(ctx, h.gm, c.ID, 0)
	if err != nil {
		t.Fatalf("list rolls: %v", err)
	}
	if len(rolls) != 2 || rolls[0].ID != server.ID || rolls[1].ID != client.ID {
		t.Fatalf("unexpected rolls %+v", rolls)
	}
}

func TestSendMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createCampaign(t, "")
	sub, err := h.bus.Subscribe(ctx, c.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	_, err = h.svc.SendMessage(ctx, h.gm, c.ID, contract.ChatRequest{Body: "   "})
	expectCode(t, err, apperrors.CodeChatBodyEmpty)
	long := make([]rune, MaxChatBodyLength+1)
	for i := range long {
		long[i] = 'é'
	}
	_, err = h.svc.SendMessage(ctx, h.gm, c.ID, contract.ChatRequest{Body: string(long)})
	expectCode(t, err, apperrors.CodeChatBodyTooLong)

	msg, err := h.svc.SendMessage(ctx, h.gm, c.ID, contract.ChatRequest{Body: " welcome "})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Body != "welcome" || msg.SenderName != "morgana" {
		t.Fatalf("unexpected message %+v", msg)
	}
	event := receive(t, sub)
	if event.Stream != realtime.StreamChatMessages || event.Op != realtime.OpInsert {
		t.Fatalf("unexpected event %+v", event)
	}

	_, err = h.svc.SendMessage(ctx, h.alice, c.ID, contract.ChatRequest{Body: "hi"})
	expectCode(t, err, apperrors.CodeCampaignMemberRequired)

	messages, err := h.svc.ListMessages(ctx, h.gm, c.ID, 500)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %d", len(messages))
	}
}

func TestDeleteCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createCampaign(t, "")
	h.putCharacter(t, h.alice, "char-1")
	h.join(t, h.alice, c.InviteCode, "char-1")

	err := h.svc.DeleteCampaign(ctx, h.alice, c.ID)
	expectCode(t, err, apperrors.CodeCampaignGMRequired)

	if err := h.svc.DeleteCampaign(ctx, h.gm, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = h.svc.GetCampaign(ctx, h.gm, c.ID)
	expectCode(t, err, apperrors.CodeCampaignMemberRequired)
}

func TestPurges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createCampaign(t, "")
	h.putCharacter(t, h.alice, "char-1")
	h.join(t, h.alice, c.InviteCode, "char-1")
	kicked := "kicked"
	if _, err := h.svc.UpdateMember(ctx, h.gm, c.ID, h.alice.UserID, contract.UpdateMemberRequest{Status: &kicked}); err != nil {
		t.Fatalf("kick: %v", err)
	}

	h.now = baseTime.Add(KickedRetention - time.Hour)
	if n, err := h.svc.PurgeKickedMembers(ctx); err != nil || n != 0 {
		t.Fatalf("early purge: n=%d err=%v", n, err)
	}
	h.now = baseTime.Add(KickedRetention + time.Hour)
	if n, err := h.svc.PurgeKickedMembers(ctx); err != nil || n != 1 {
		t.Fatalf("kicked purge: n=%d err=%v", n, err)
	}

	h.now = baseTime.Add(179 * 24 * time.Hour)
	if n, err := h.svc.PurgeInactiveCharacters(ctx); err != nil || n != 0 {
		t.Fatalf("early character purge: n=%d err=%v", n, err)
	}
	h.now = baseTime.Add(181 * 24 * time.Hour)
	if n, err := h.svc.PurgeInactiveCharacters(ctx); err != nil || n != 1 {
		t.Fatalf("character purge: n=%d err=%v", n, err)
	}
}

func TestJoinOrEnterAcrossStores(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			h := newHarnessWith(t, b.open(t))
			ctx := context.Background()
			c := h.createCampaign(t, `{"max_players":4}`)

			gmList, err := h.svc.ListCampaigns(ctx, h.gm)
			if err != nil {
				t.Fatalf("list as gm: %v", err)
			}
			if len(gmList) != 1 || gmList[0].ID != c.ID || gmList[0].InviteCode != c.InviteCode || gmList[0].Name != "Neon Nights" {
				t.Fatalf("gm campaigns = %+v", gmList)
			}
			if gmList[0].Role != string(campaign.RoleGM) {
				t.Fatalf("gm role = %q", gmList[0].Role)
			}

			h.putCharacter(t, h.alice, "char-1")
			first := h.join(t, h.alice, c.InviteCode, "char-1")
			if first.Member.Status != string(campaign.StatusActive) {
				t.Fatalf("join status = %s", first.Member.Status)
			}

			list, err := h.svc.ListCampaigns(ctx, h.alice)
			if err != nil {
				t.Fatalf("list as player: %v", err)
			}
			if len(list) != 1 || list[0].InviteCode != c.InviteCode || list[0].ID != c.ID {
				t.Fatalf("player campaigns = %+v", list)
			}
			if list[0].Role != string(campaign.RolePlayer) || list[0].Status != string(campaign.StatusActive) {
				t.Fatalf("player membership = %s/%s", list[0].Role, list[0].Status)
			}
			if string(list[0].Settings) != string(c.Settings) {
				t.Fatalf("listed settings = %s", list[0].Settings)
			}

			again := h.join(t, h.alice, list[0].InviteCode, "char-1")
			if !again.Member.JoinedAt.Equal(first.Member.JoinedAt) {
				t.Fatal("rejoin should update the existing membership")
			}
			count, err := h.store.CountActivePlayers(ctx, c.ID)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != 1 {
				t.Fatalf("active players = %d, want 1", count)
			}
		})
	}
}

func TestConcurrentJoinsRespectPlayerCap(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			h := newHarnessWith(t, b.open(t))
			ctx := context.Background()
			c := h.createCampaign(t, `{"max_players":2}`)

			players := make([]Caller, 6)
			for i := range players {
				players[i] = h.putUser(t, fmt.Sprintf("user-%d", i), fmt.Sprintf("player%d", i), false)
				h.putCharacter(t, players[i], fmt.Sprintf("char-%d", i))
			}

			errs := make([]error, len(players))
			var wg sync.WaitGroup
			for i, p := range players {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = h.svc.JoinByCode(ctx, p, contract.JoinRequest{Code: c.InviteCode, CharacterID: fmt.Sprintf("char-%d", i)})
				}()
			}
			wg.Wait()

			joined := 0
			for i, err := range errs {
				switch {
				case err == nil:
					joined++
				case apperrors.GetCode(err) == apperrors.CodeCampaignFull:
				default:
					t.Fatalf("join %d: %v", i, err)
				}
			}
			if joined != 2 {
				t.Fatalf("joined = %d, want 2", joined)
			}
			count, err := h.store.CountActivePlayers(ctx, c.ID)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != 2 {
				t.Fatalf("active players = %d, want 2", count)
			}
		})
	}
}
