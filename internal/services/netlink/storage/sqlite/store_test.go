package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zenite-os/zenite/internal/campaign"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
	"github.com/zenite-os/zenite/internal/services/netlink/user"
)

var baseTime = time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "netlink.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store
}

func putTestUser(t *testing.T, store *Store, id, username string) user.User {
	t.Helper()
	u := user.User{ID: id, Username: username, PasswordHash: "hash", CreatedAt: baseTime, UpdatedAt: baseTime}
	if err := store.PutUser(context.Background(), u); err != nil {
		t.Fatalf("put user %s: %v", id, err)
	}
	return u
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netlink.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	for _, table := range []string{"users", "profile_entries", "characters", "campaigns", "campaign_members", "dice_logs", "chat_logs"} {
		var name string
		if err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestNilStoreIsNotConfigured(t *testing.T) {
	var store *Store
	if _, err := store.GetUser(context.Background(), "u1"); err == nil {
		t.Fatal("expected error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}

func TestUsersAndProfile(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	putTestUser(t, store, "u1", "nova")

	if err := store.PutUser(ctx, user.User{ID: "u2", Username: "nova"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate username err = %v", err)
	}

	got, err := store.GetUserByUsername(ctx, "NOVA")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got.ID != "u1" || got.PasswordHash != "hash" || !got.CreatedAt.Equal(baseTime) {
		t.Fatalf("user = %+v", got)
	}
	if _, err := store.GetUser(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing user err = %v", err)
	}

	entry := storage.ProfileEntry{UserID: "u1", Key: "theme", Value: json.RawMessage(`{"accent":"cyan"}`), UpdatedAt: baseTime}
	if err := store.PutProfileEntry(ctx, entry); err != nil {
		t.Fatalf("put profile: %v", err)
	}
	entry.Value = json.RawMessage(`{"accent":"magenta"}`)
	if err := store.PutProfileEntry(ctx, entry); err != nil {
		t.Fatalf("overwrite profile: %v", err)
	}
	loaded, err := store.GetProfileEntry(ctx, "u1", "theme")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if string(loaded.Value) != `{"accent":"magenta"}` {
		t.Fatalf("value = %s", loaded.Value)
	}
	if err := store.DeleteProfileEntry(ctx, "u1", "theme"); err != nil {
		t.Fatalf("delete profile: %v", err)
	}
	if _, err := store.GetProfileEntry(ctx, "u1", "theme"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted profile err = %v", err)
	}
}

func TestCharacters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	putTestUser(t, store, "u1", "nova")
	putTestUser(t, store, "u2", "rex")

	old := storage.CharacterRecord{ID: "c-old", OwnerID: "u1", Name: "Old", Sheet: json.RawMessage(`{"id":"c-old"}`), UpdatedAt: baseTime.Add(-200 * 24 * time.Hour)}
	fresh := storage.CharacterRecord{ID: "c-new", OwnerID: "u1", Name: "New", Sheet: json.RawMessage(`{"id":"c-new"}`), UpdatedAt: baseTime}
	for _, record := range []storage.CharacterRecord{old, fresh} {
		if err := store.PutCharacter(ctx, record); err != nil {
			t.Fatalf("put character: %v", err)
		}
	}

	list, err := store.ListCharacters(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c-new" {
		t.Fatalf("list = %+v", list)
	}

	stolen := fresh
	stolen.OwnerID = "u2"
	stolen.Name = "Stolen"
	if err := store.PutCharacter(ctx, stolen); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cross-owner put err = %v", err)
	}
	got, err := store.GetCharacter(ctx, "u1", "c-new")
	if err != nil || got.Name != "New" {
		t.Fatalf("character = %+v, %v", got, err)
	}

	n, err := store.DeleteCharactersUpdatedBefore(ctx, baseTime.Add(-180*24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("purge = %d, %v", n, err)
	}
	if err := store.DeleteCharacter(ctx, "u1", "c-old"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete purged err = %v", err)
	}
	if err := store.DeleteCharacter(ctx, "u1", "c-new"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func seedCampaign(t *testing.T, store *Store) campaign.Campaign {
	t.Helper()
	putTestUser(t, store, "gm", "boss")
	putTestUser(t, store, "p1", "nova")
	c := campaign.Campaign{
		ID:         "camp",
		GMID:       "gm",
		Name:       "Neon Tide",
		InviteCode: "AB12CD",
		Settings:   campaign.DefaultSettings(),
		Notes:      "secret",
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
	if err := store.CreateCampaign(context.Background(), c, campaign.NewGMMember(c, "boss")); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func TestCampaignLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	c := seedCampaign(t, store)

	dup := c
	dup.ID = "camp2"
	if err := store.CreateCampaign(ctx, dup, campaign.NewGMMember(dup, "boss")); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate code err = %v", err)
	}

	byCode, err := store.GetCampaignByInviteCode(ctx, "ab12cd")
	if err != nil || byCode.ID != "camp" || byCode.Notes != "secret" {
		t.Fatalf("by code = %+v, %v", byCode, err)
	}

	player := campaign.Member{
		CampaignID: "camp", UserID: "p1", Username: "nova", Role: campaign.RolePlayer,
		Status: campaign.StatusActive, CharacterID: "c1", CharData: json.RawMessage(`{"name":"Nova"}`),
		JoinedAt: baseTime.Add(time.Minute), UpdatedAt: baseTime.Add(time.Minute),
	}
	if err := store.PutMember(ctx, player); err != nil {
		t.Fatalf("put member: %v", err)
	}
	count, err := store.CountActivePlayers(ctx, "camp")
	if err != nil || count != 1 {
		t.Fatalf("active players = %d, %v", count, err)
	}
	members, err := store.ListMembers(ctx, "camp")
	if err != nil || len(members) != 2 || members[0].Role != campaign.RoleGM || string(members[1].CharData) != `{"name":"Nova"}` {
		t.Fatalf("members = %+v, %v", members, err)
	}

	summaries, err := store.ListCampaignsForUser(ctx, "p1")
	if err != nil || len(summaries) != 1 || summaries[0].Role != campaign.RolePlayer || summaries[0].Status != campaign.StatusActive {
		t.Fatalf("summaries = %+v, %v", summaries, err)
	}

	c.Notes = "new notes"
	c.UpdatedAt = baseTime.Add(time.Hour)
	if err := store.UpdateCampaign(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetCampaign(ctx, "camp")
	if err != nil || got.Notes != "new notes" {
		t.Fatalf("campaign = %+v, %v", got, err)
	}

	if err := store.AppendDiceRoll(ctx, storage.DiceRoll{ID: "r1", CampaignID: "camp", UserID: "p1", SenderName: "nova", Formula: "D20+1", Dice: []int{12}, Natural: 12, Modifier: 1, Total: 13, CreatedAt: baseTime}); err != nil {
		t.Fatalf("append roll: %v", err)
	}
	if err := store.AppendChatMessage(ctx, storage.ChatMessage{ID: "m1", CampaignID: "camp", UserID: "p1", SenderName: "nova", Body: "hi", CreatedAt: baseTime}); err != nil {
		t.Fatalf("append chat: %v", err)
	}

	if err := store.DeleteCampaign(ctx, "camp"); err != nil {
		t.Fatalf("delete campaign: %v", err)
	}
	if _, err := store.GetCampaign(ctx, "camp"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted campaign err = %v", err)
	}
	if members, _ := store.ListMembers(ctx, "camp"); len(members) != 0 {
		t.Fatalf("members survived delete: %+v", members)
	}
	if rolls, _ := store.ListDiceRolls(ctx, "camp", 10); len(rolls) != 0 {
		t.Fatalf("rolls survived delete: %+v", rolls)
	}
	if msgs, _ := store.ListChatMessages(ctx, "camp", 10); len(msgs) != 0 {
		t.Fatalf("messages survived delete: %+v", msgs)
	}
	if err := store.DeleteCampaign(ctx, "camp"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestLogsReturnMostRecentOldestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedCampaign(t, store)

	for i := 0; i < 5; i++ {
		at := baseTime.Add(time.Duration(i) * time.Second)
		roll := storage.DiceRoll{ID: string(rune('a' + i)), CampaignID: "camp", UserID: "p1", SenderName: "nova", Formula: "D6", Dice: []int{i + 1}, Natural: i + 1, Total: i + 1, CreatedAt: at}
		if err := store.AppendDiceRoll(ctx, roll); err != nil {
			t.Fatalf("append roll: %v", err)
		}
		msg := storage.ChatMessage{ID: string(rune('a' + i)), CampaignID: "camp", UserID: "p1", SenderName: "nova", Body: "msg", CreatedAt: at}
		if err := store.AppendChatMessage(ctx, msg); err != nil {
			t.Fatalf("append chat: %v", err)
		}
	}

	rolls, err := store.ListDiceRolls(ctx, "camp", 3)
	if err != nil {
		t.Fatalf("list rolls: %v", err)
	}
	if len(rolls) != 3 || rolls[0].ID != "c" || rolls[2].ID != "e" || rolls[2].Dice[0] != 5 {
		t.Fatalf("rolls = %+v", rolls)
	}
	msgs, err := store.ListChatMessages(ctx, "camp", 0)
	if err != nil || len(msgs) != 5 || msgs[0].ID != "a" {
		t.Fatalf("messages = %+v, %v", msgs, err)
	}
	if err := store.AppendDiceRoll(ctx, rolls[0]); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate roll err = %v", err)
	}
}

func TestDeleteKickedMembersBefore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedCampaign(t, store)

	kicked := campaign.Member{CampaignID: "camp", UserID: "p1", Role: campaign.RolePlayer, Status: campaign.StatusKicked, JoinedAt: baseTime, UpdatedAt: baseTime}
	if err := store.PutMember(ctx, kicked); err != nil {
		t.Fatalf("put member: %v", err)
	}
	n, err := store.DeleteKickedMembersBefore(ctx, baseTime)
	if err != nil || n != 0 {
		t.Fatalf("early purge = %d, %v", n, err)
	}
	n, err = store.DeleteKickedMembersBefore(ctx, baseTime.Add(31*24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("purge = %d, %v", n, err)
	}
	members, _ := store.ListMembers(ctx, "camp")
	if len(members) != 1 || members[0].Role != campaign.RoleGM {
		t.Fatalf("members = %+v", members)
	}
}

func TestAddMemberEnforcesPlayerCap(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedCampaign(t, store)

	player := func(id string) campaign.Member {
		return campaign.Member{CampaignID: "camp", UserID: id, Role: campaign.RolePlayer, Status: campaign.StatusActive, JoinedAt: baseTime, UpdatedAt: baseTime}
	}
	if err := store.AddMember(ctx, player("p1"), 1); err != nil {
		t.Fatalf("add first player: %v", err)
	}
	if err := store.AddMember(ctx, player("p2"), 1); !errors.Is(err, campaign.ErrCampaignFull) {
		t.Fatalf("add over cap err = %v", err)
	}
	if _, err := store.GetMember(ctx, "camp", "p2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("rejected member stored: %v", err)
	}
	if err := store.AddMember(ctx, player("p3"), 0); err != nil {
		t.Fatalf("add without cap: %v", err)
	}
	n, err := store.CountActivePlayers(ctx, "camp")
	if err != nil || n != 2 {
		t.Fatalf("active players = %d, %v", n, err)
	}
}
