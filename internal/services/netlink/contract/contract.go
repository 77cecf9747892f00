// Package contract defines the JSON bodies exchanged by the NetLink HTTP API,
// its realtime change records and the client core.
package contract

import (
	"encoding/json"
	"time"

	"github.com/zenite-os/zenite/internal/campaign"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
)

// Session is returned by the auth endpoints.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Guest     bool      `json:"guest"`
}

// Credentials is the signup and login body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileEntry is one profile key.
type ProfileEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Character is a stored character sheet.
type Character struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Sheet     json.RawMessage `json:"sheet"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Campaign is a campaign as seen by one member. Notes are only present for
// the GM.
type Campaign struct {
	ID         string          `json:"id"`
	GMID       string          `json:"gm_id"`
	Name       string          `json:"name"`
	InviteCode string          `json:"invite_code"`
	Settings   json.RawMessage `json:"settings"`
	Notes      string          `json:"notes,omitempty"`
	Role       string          `json:"role,omitempty"`
	Status     string          `json:"status,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CreateCampaignRequest creates a campaign owned by the caller.
type CreateCampaignRequest struct {
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// UpdateCampaignRequest is a partial GM edit.
type UpdateCampaignRequest struct {
	Name     *string         `json:"name,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
	Notes    *string         `json:"notes,omitempty"`
}

// JoinRequest redeems an invite code with one of the caller's characters.
type JoinRequest struct {
	Code        string `json:"code"`
	CharacterID string `json:"character_id,omitempty"`
}

// JoinResponse reports the campaign and the resulting membership.
type JoinResponse struct {
	Campaign Campaign `json:"campaign"`
	Member   Member   `json:"member"`
}

// Member is a campaign membership row.
type Member struct {
	CampaignID  string          `json:"campaign_id"`
	UserID      string          `json:"user_id"`
	Username    string          `json:"username"`
	Role        string          `json:"role"`
	Status      string          `json:"status"`
	CharacterID string          `json:"character_id,omitempty"`
	CharData    json.RawMessage `json:"char_data,omitempty"`
	JoinedAt    time.Time       `json:"joined_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// UpdateMemberRequest edits a membership.
type UpdateMemberRequest struct {
	Status   *string         `json:"status,omitempty"`
	CharData json.RawMessage `json:"char_data,omitempty"`
}

// DiceRoll is a dice log row.
type DiceRoll struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	UserID     string    `json:"user_id"`
	SenderName string    `json:"sender_name"`
	Formula    string    `json:"formula"`
	Dice       []int     `json:"dice"`
	Natural    int       `json:"natural"`
	Modifier   int       `json:"modifier"`
	Total      int       `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}

// RollRequest logs a roll. Clients that rolled locally send the dice; an
// empty Dice asks the server to roll.
type RollRequest struct {
	Formula    string `json:"formula"`
	SenderName string `json:"sender_name,omitempty"`
	Dice       []int  `json:"dice,omitempty"`
	Natural    int    `json:"natural,omitempty"`
	Modifier   int    `json:"modifier,omitempty"`
	Total      int    `json:"total,omitempty"`
}

// ChatMessage is a chat log row.
type ChatMessage struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	UserID     string    `json:"user_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChatRequest posts a chat message.
type ChatRequest struct {
	Body       string `json:"body"`
	SenderName string `json:"sender_name,omitempty"`
}

// ArchiveList lists snapshot keys, newest first.
type ArchiveList struct {
	Keys []string `json:"keys"`
}

// ArchiveCreated reports a new snapshot key.
type ArchiveCreated struct {
	Key string `json:"key"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the machine code and the localized message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FromCampaign renders c for a member with role and status.
func FromCampaign(c campaign.Campaign, role campaign.Role, status campaign.Status) Campaign {
	c = c.Redacted(role)
	return Campaign{
		ID:         c.ID,
		GMID:       c.GMID,
		Name:       c.Name,
		InviteCode: c.InviteCode,
		Settings:   c.Settings,
		Notes:      c.Notes,
		Role:       string(role),
		Status:     string(status),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// FromMember renders a membership row.
func FromMember(m campaign.Member) Member {
	return Member{
		CampaignID:  m.CampaignID,
		UserID:      m.UserID,
		Username:    m.Username,
		Role:        string(m.Role),
		Status:      string(m.Status),
		CharacterID: m.CharacterID,
		CharData:    m.CharData,
		JoinedAt:    m.JoinedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDiceRoll renders a dice log row.
func FromDiceRoll(r storage.DiceRoll) DiceRoll {
	dice := r.Dice
	if dice == nil {
		dice = []int{}
	}
	return DiceRoll{
		ID:         r.ID,
		CampaignID: r.CampaignID,
		UserID:     r.UserID,
		SenderName: r.SenderName,
		Formula:    r.Formula,
		Dice:       dice,
		Natural:    r.Natural,
		Modifier:   r.Modifier,
		Total:      r.Total,
		CreatedAt:  r.CreatedAt,
	}
}

// FromChatMessage renders a chat log row.
func FromChatMessage(m storage.ChatMessage) ChatMessage {
	return ChatMessage{
		ID:         m.ID,
		CampaignID: m.CampaignID,
		UserID:     m.UserID,
		SenderName: m.SenderName,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

// FromCharacter renders a stored character.
func FromCharacter(r storage.CharacterRecord) Character {
	return Character{
		ID:        r.ID,
		Name:      r.Name,
		Sheet:     r.Sheet,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// FromProfileEntry renders a profile key.
func FromProfileEntry(e storage.ProfileEntry) ProfileEntry {
	return ProfileEntry{Key: e.Key, Value: e.Value, UpdatedAt: e.UpdatedAt}
}
