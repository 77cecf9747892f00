package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zenite-os/zenite/internal/campaign"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/services/netlink/user"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")
	// ErrConflict indicates a uniqueness constraint rejected a write.
	ErrConflict = apperrors.New(apperrors.CodeConflict, "record already exists")
)

// ProfileEntry is one key of a user's key-value profile.
type ProfileEntry struct {
	UserID    string
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// CharacterRecord is a stored character sheet.
type CharacterRecord struct {
	ID        string
	OwnerID   string
	Name      string
	Sheet     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CampaignSummary is a campaign seen from one member.
type CampaignSummary struct {
	Campaign campaign.Campaign
	Role     campaign.Role
	Status   campaign.Status
}

// DiceRoll is an append-only dice log row.
type DiceRoll struct {
	ID         string
	CampaignID string
	UserID     string
	SenderName string
	Formula    string
	Dice       []int
	Natural    int
	Modifier   int
	Total      int
	CreatedAt  time.Time
}

// ChatMessage is an append-only chat log row.
type ChatMessage struct {
	ID         string
	CampaignID string
	UserID     string
	SenderName string
	Body       string
	CreatedAt  time.Time
}

// UserStore persists accounts.
type UserStore interface {
	// PutUser inserts a user; a taken username returns ErrConflict.
	PutUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
}

// ProfileStore persists per-user key-value entries.
type ProfileStore interface {
	GetProfileEntry(ctx context.Context, userID, key string) (ProfileEntry, error)
	PutProfileEntry(ctx context.Context, entry ProfileEntry) error
	DeleteProfileEntry(ctx context.Context, userID, key string) error
}

// CharacterStore persists character sheets.
type CharacterStore interface {
	ListCharacters(ctx context.Context, ownerID string) ([]CharacterRecord, error)
	GetCharacter(ctx context.Context, ownerID, characterID string) (CharacterRecord, error)
	PutCharacter(ctx context.Context, record CharacterRecord) error
	DeleteCharacter(ctx context.Context, ownerID, characterID string) error
	// DeleteCharactersUpdatedBefore removes characters untouched since cutoff.
	DeleteCharactersUpdatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// CampaignStore persists campaigns.
type CampaignStore interface {
	// CreateCampaign inserts the campaign and its GM membership atomically.
	// A duplicate invite code returns ErrConflict.
	CreateCampaign(ctx context.Context, c campaign.Campaign, gm campaign.Member) error
	GetCampaign(ctx context.Context, campaignID string) (campaign.Campaign, error)
	GetCampaignByInviteCode(ctx context.Context, code string) (campaign.Campaign, error)
	ListCampaignsForUser(ctx context.Context, userID string) ([]CampaignSummary, error)
	UpdateCampaign(ctx context.Context, c campaign.Campaign) error
	// DeleteCampaign removes the campaign with its members, dice and chat rows
	// in one transaction.
	DeleteCampaign(ctx context.Context, campaignID string) error
}

// MemberStore persists campaign memberships.
type MemberStore interface {
	GetMember(ctx context.Context, campaignID, userID string) (campaign.Member, error)
	ListMembers(ctx context.Context, campaignID string) ([]campaign.Member, error)
	PutMember(ctx context.Context, m campaign.Member) error
	// AddMember inserts a new player membership. When maxPlayers is positive
	// the active player count is checked in the same transaction and
	// campaign.ErrCampaignFull is returned once it reaches maxPlayers.
	AddMember(ctx context.Context, m campaign.Member, maxPlayers int) error
	CountActivePlayers(ctx context.Context, campaignID string) (int, error)
	// DeleteKickedMembersBefore removes kicked rows last updated before cutoff.
	DeleteKickedMembersBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// LogStore persists dice and chat logs.
type LogStore interface {
	AppendDiceRoll(ctx context.Context, roll DiceRoll) error
	// ListDiceRolls returns up to limit most recent rolls, oldest first.
	ListDiceRolls(ctx context.Context, campaignID string, limit int) ([]DiceRoll, error)
	AppendChatMessage(ctx context.Context, msg ChatMessage) error
	// ListChatMessages returns up to limit most recent messages, oldest first.
	ListChatMessages(ctx context.Context, campaignID string, limit int) ([]ChatMessage, error)
}

// Store is the full NetLink persistence contract.
type Store interface {
	UserStore
	ProfileStore
	CharacterStore
	CampaignStore
	MemberStore
	LogStore
	Close() error
}
