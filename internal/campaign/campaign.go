package campaign

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/id"
)

// MaxNameLength bounds campaign names in runes.
const MaxNameLength = 80

var (
	// ErrEmptyName indicates a missing campaign name.
	ErrEmptyName = apperrors.New(apperrors.CodeCampaignNameEmpty, "campaign name is required")
	// ErrEmptyGMID indicates a campaign without an owner.
	ErrEmptyGMID = apperrors.New(apperrors.CodeAuthRequired, "campaign gm id is required")
)

// Campaign is a NetLink campaign owned by a GM.
type Campaign struct {
	ID         string
	GMID       string
	Name       string
	InviteCode string
	// Settings is the JSON settings blob shared with every member.
	Settings json.RawMessage
	// Notes are GM-private.
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateCampaignInput describes the metadata needed to create a campaign.
type CreateCampaignInput struct {
	GMID     string
	Name     string
	Settings json.RawMessage
}

// Generators supplies the clock and identifier sources used by CreateCampaign.
// Nil fields fall back to time.Now, id.NewID and NewInviteCode.
type Generators struct {
	Now        func() time.Time
	ID         func() (string, error)
	InviteCode func() (string, error)
}

// CreateCampaign creates a new campaign with generated identifiers and timestamps.
func CreateCampaign(input CreateCampaignInput, gen Generators) (Campaign, error) {
	if gen.Now == nil {
		gen.Now = time.Now
	}
	if gen.ID == nil {
		gen.ID = id.NewID
	}
	if gen.InviteCode == nil {
		gen.InviteCode = func() (string, error) { return NewInviteCode(nil) }
	}

	normalized, err := NormalizeCreateCampaignInput(input)
	if err != nil {
		return Campaign{}, err
	}

	campaignID, err := gen.ID()
	if err != nil {
		return Campaign{}, fmt.Errorf("generate campaign id: %w", err)
	}
	code, err := gen.InviteCode()
	if err != nil {
		return Campaign{}, fmt.Errorf("generate invite code: %w", err)
	}

	createdAt := gen.Now().UTC()
	return Campaign{
		ID:         campaignID,
		GMID:       normalized.GMID,
		Name:       normalized.Name,
		InviteCode: code,
		Settings:   normalized.Settings,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}, nil
}

// NormalizeCreateCampaignInput trims input, applies default settings and
// validates the result.
func NormalizeCreateCampaignInput(input CreateCampaignInput) (CreateCampaignInput, error) {
	input.GMID = strings.TrimSpace(input.GMID)
	if input.GMID == "" {
		return CreateCampaignInput{}, ErrEmptyGMID
	}
	name, err := NormalizeName(input.Name)
	if err != nil {
		return CreateCampaignInput{}, err
	}
	input.Name = name

	settings, err := NormalizeSettings(input.Settings)
	if err != nil {
		return CreateCampaignInput{}, err
	}
	input.Settings = settings
	return input, nil
}

// NormalizeName trims a campaign name and enforces its bounds.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrEmptyName
	}
	runes := []rune(name)
	if len(runes) > MaxNameLength {
		name = string(runes[:MaxNameLength])
	}
	return name, nil
}

// Update holds a GM edit of campaign metadata. Nil fields are left unchanged.
type Update struct {
	Name     *string
	Settings json.RawMessage
	Notes    *string
}

// ApplyUpdate applies a GM edit and bumps UpdatedAt.
func ApplyUpdate(c Campaign, update Update, now func() time.Time) (Campaign, error) {
	if now == nil {
		now = time.Now
	}
	updated := c
	if update.Name != nil {
		name, err := NormalizeName(*update.Name)
		if err != nil {
			return Campaign{}, err
		}
		updated.Name = name
	}
	if len(update.Settings) > 0 {
		settings, err := NormalizeSettings(update.Settings)
		if err != nil {
			return Campaign{}, err
		}
		updated.Settings = settings
	}
	if update.Notes != nil {
		updated.Notes = *update.Notes
	}
	updated.UpdatedAt = now().UTC()
	return updated, nil
}

// Redacted returns a copy safe to show a member with the given role.
func (c Campaign) Redacted(role Role) Campaign {
	if role == RoleGM {
		return c
	}
	c.Notes = ""
	return c
}
