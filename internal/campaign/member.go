package campaign

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
)

// Role is a member's role in a campaign.
type Role string

// Status is a member's standing in a campaign.
type Status string

const (
	// RoleGM owns the campaign.
	RoleGM Role = "gm"
	// RolePlayer joined through an invite code.
	RolePlayer Role = "player"
)

const (
	// StatusActive members receive realtime events and may roll and chat.
	StatusActive Status = "active"
	// StatusPending members wait for GM approval.
	StatusPending Status = "pending"
	// StatusKicked members were removed by the GM.
	StatusKicked Status = "kicked"
)

var (
	// ErrEmptyUserID indicates a membership without a user.
	ErrEmptyUserID = apperrors.New(apperrors.CodeAuthRequired, "member user id is required")
	// ErrKicked indicates a kicked member tried to rejoin or act.
	ErrKicked = apperrors.New(apperrors.CodeCampaignMemberKicked, "member was kicked from the campaign")
	// ErrNotMember indicates the caller has no active membership.
	ErrNotMember = apperrors.New(apperrors.CodeCampaignMemberRequired, "active campaign membership required")
	// ErrGMRequired indicates a GM-only operation.
	ErrGMRequired = apperrors.New(apperrors.CodeCampaignGMRequired, "campaign gm required")
	// ErrCampaignFull indicates the member cap from settings was reached.
	ErrCampaignFull = apperrors.New(apperrors.CodeCampaignFull, "campaign is full")
)

// Member links a user to a campaign.
type Member struct {
	CampaignID  string
	UserID      string
	Username    string
	Role        Role
	Status      Status
	CharacterID string
	// CharData is the member's character sheet copy, editable by the GM.
	CharData  json.RawMessage
	JoinedAt  time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the member may take part in play.
func (m Member) IsActive() bool {
	return m.Status == StatusActive
}

// ParseRole validates a role label.
func ParseRole(raw string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(raw))); role {
	case RoleGM, RolePlayer:
		return role, nil
	default:
		return "", apperrors.WithMetadata(
			apperrors.CodeCampaignInvalidStatus,
			fmt.Sprintf("unknown member role %q", raw),
			map[string]string{"Status": raw},
		)
	}
}

// ParseStatus validates a status label.
func ParseStatus(raw string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(raw))); status {
	case StatusActive, StatusPending, StatusKicked:
		return status, nil
	default:
		return "", apperrors.WithMetadata(
			apperrors.CodeCampaignInvalidStatus,
			fmt.Sprintf("unknown member status %q", raw),
			map[string]string{"Status": raw},
		)
	}
}

// NewGMMember builds the owner membership created alongside a campaign.
func NewGMMember(c Campaign, username string) Member {
	return Member{
		CampaignID: c.ID,
		UserID:     c.GMID,
		Username:   username,
		Role:       RoleGM,
		Status:     StatusActive,
		JoinedAt:   c.CreatedAt,
		UpdatedAt:  c.CreatedAt,
	}
}

// JoinInput describes a player joining through an invite code.
type JoinInput struct {
	UserID      string
	Username    string
	CharacterID string
	CharData    json.RawMessage
}

// Join decides the membership produced when a user redeems the campaign's
// invite code. existing is the user's current row, if any; activeCount is the
// number of active players.
func Join(c Campaign, settings Settings, input JoinInput, existing *Member, activeCount int, now func() time.Time) (Member, error) {
	if now == nil {
		now = time.Now
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return Member{}, ErrEmptyUserID
	}
	at := now().UTC()

	if existing != nil {
		switch existing.Status {
		case StatusKicked:
			return Member{}, ErrKicked
		default:
			updated := *existing
			if strings.TrimSpace(input.CharacterID) != "" {
				updated.CharacterID = strings.TrimSpace(input.CharacterID)
				updated.CharData = input.CharData
			}
			updated.UpdatedAt = at
			return updated, nil
		}
	}

	if settings.MaxPlayers > 0 && activeCount >= settings.MaxPlayers {
		return Member{}, ErrCampaignFull
	}

	status := StatusActive
	if settings.RequireApproval {
		status = StatusPending
	}
	return Member{
		CampaignID:  c.ID,
		UserID:      userID,
		Username:    strings.TrimSpace(input.Username),
		Role:        RolePlayer,
		Status:      status,
		CharacterID: strings.TrimSpace(input.CharacterID),
		CharData:    input.CharData,
		JoinedAt:    at,
		UpdatedAt:   at,
	}, nil
}

// MemberUpdate is a GM edit of a member row. Nil fields are left unchanged.
type MemberUpdate struct {
	Status   *Status
	CharData json.RawMessage
}

// ApplyMemberUpdate applies a GM edit to a player's membership.
func ApplyMemberUpdate(m Member, update MemberUpdate, now func() time.Time) (Member, error) {
	if now == nil {
		now = time.Now
	}
	updated := m
	if update.Status != nil {
		if m.Role == RoleGM && *update.Status != StatusActive {
			return Member{}, apperrors.WithMetadata(
				apperrors.CodeCampaignInvalidStatus,
				"gm membership cannot leave the active status",
				map[string]string{"Status": string(*update.Status)},
			)
		}
		if _, err := ParseStatus(string(*update.Status)); err != nil {
			return Member{}, err
		}
		updated.Status = *update.Status
	}
	if len(update.CharData) > 0 {
		updated.CharData = update.CharData
	}
	updated.UpdatedAt = now().UTC()
	return updated, nil
}
