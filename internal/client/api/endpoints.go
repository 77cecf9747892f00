package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/zenite-os/zenite/internal/services/netlink/contract"
)

// SignUp creates an account and stores its token.
func (c *Client) SignUp(ctx context.Context, username, password string) (contract.Session, error) {
	return c.authenticate(ctx, "/auth/signup", contract.Credentials{Username: username, Password: password})
}

// Login signs in and stores the token.
func (c *Client) Login(ctx context.Context, username, password string) (contract.Session, error) {
	return c.authenticate(ctx, "/auth/login", contract.Credentials{Username: username, Password: password})
}

// Guest opens a guest session and stores the token.
func (c *Client) Guest(ctx context.Context) (contract.Session, error) {
	return c.authenticate(ctx, "/auth/guest", nil)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (contract.Session, error) {
	var session contract.Session
	if err := c.do(ctx, http.MethodPost, path, body, &session); err != nil {
		return contract.Session{}, err
	}
	c.SetToken(session.Token)
	return session, nil
}

// Session returns the identity behind the current token.
func (c *Client) Session(ctx context.Context) (contract.Session, error) {
	var session contract.Session
	err := c.do(ctx, http.MethodGet, "/auth/session", nil, &session)
	return session, err
}

// GetProfile reads a profile key.
func (c *Client) GetProfile(ctx context.Context, key string) (contract.ProfileEntry, error) {
	var entry contract.ProfileEntry
	err := c.do(ctx, http.MethodGet, "/profile/"+escape(key), nil, &entry)
	return entry, err
}

// PutProfile writes a profile key.
func (c *Client) PutProfile(ctx context.Context, key string, value json.RawMessage) (contract.ProfileEntry, error) {
	var entry contract.ProfileEntry
	err := c.do(ctx, http.MethodPut, "/profile/"+escape(key), value, &entry)
	return entry, err
}

// DeleteProfile removes a profile key.
func (c *Client) DeleteProfile(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/profile/"+escape(key), nil, nil)
}

// ListCharacters lists the caller's characters.
func (c *Client) ListCharacters(ctx context.Context) ([]contract.Character, error) {
	var out []contract.Character
	err := c.do(ctx, http.MethodGet, "/characters", nil, &out)
	return out, err
}

// PutCharacter upserts a sheet under id.
func (c *Client) PutCharacter(ctx context.Context, id string, sheet json.RawMessage) (contract.Character, error) {
	var out contract.Character
	err := c.do(ctx, http.MethodPut, "/characters/"+escape(id), sheet, &out)
	return out, err
}

// DeleteCharacter removes a character.
func (c *Client) DeleteCharacter(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/characters/"+escape(id), nil, nil)
}

// ArchiveCharacter snapshots a character to object storage.
func (c *Client) ArchiveCharacter(ctx context.Context, id string) (contract.ArchiveCreated, error) {
	var out contract.ArchiveCreated
	err := c.do(ctx, http.MethodPut, "/characters/"+escape(id)+"/archive", nil, &out)
	return out, err
}

// ListArchives lists a character's snapshots.
func (c *Client) ListArchives(ctx context.Context, id string) (contract.ArchiveList, error) {
	var out contract.ArchiveList
	err := c.do(ctx, http.MethodGet, "/characters/"+escape(id)+"/archive", nil, &out)
	return out, err
}

// CreateCampaign creates a campaign with the caller as GM.
func (c *Client) CreateCampaign(ctx context.Context, req contract.CreateCampaignRequest) (contract.Campaign, error) {
	var out contract.Campaign
	err := c.do(ctx, http.MethodPost, "/campaigns", req, &out)
	return out, err
}

// ListCampaigns lists the caller's campaigns.
func (c *Client) ListCampaigns(ctx context.Context) ([]contract.Campaign, error) {
	var out []contract.Campaign
	err := c.do(ctx, http.MethodGet, "/campaigns", nil, &out)
	return out, err
}

// JoinByCode redeems an invite code.
func (c *Client) JoinByCode(ctx context.Context, req contract.JoinRequest) (contract.JoinResponse, error) {
	var out contract.JoinResponse
	err := c.do(ctx, http.MethodPost, "/campaigns/join", req, &out)
	return out, err
}

// GetCampaign loads one campaign.
func (c *Client) GetCampaign(ctx context.Context, campaignID string) (contract.Campaign, error) {
	var out contract.Campaign
	err := c.do(ctx, http.MethodGet, "/campaigns/"+escape(campaignID), nil, &out)
	return out, err
}

// UpdateCampaign applies a GM edit.
func (c *Client) UpdateCampaign(ctx context.Context, campaignID string, req contract.UpdateCampaignRequest) (contract.Campaign, error) {
	var out contract.Campaign
	err := c.do(ctx, http.MethodPatch, "/campaigns/"+escape(campaignID), req, &out)
	return out, err
}

// DeleteCampaign deletes a campaign.
func (c *Client) DeleteCampaign(ctx context.Context, campaignID string) error {
	return c.do(ctx, http.MethodDelete, "/campaigns/"+escape(campaignID), nil, nil)
}

// ListMembers lists a campaign's members.
func (c *Client) ListMembers(ctx context.Context, campaignID string) ([]contract.Member, error) {
	var out []contract.Member
	err := c.do(ctx, http.MethodGet, "/campaigns/"+escape(campaignID)+"/members", nil, &out)
	return out, err
}

// UpdateMember edits a membership.
func (c *Client) UpdateMember(ctx context.Context, campaignID, userID string, req contract.UpdateMemberRequest) (contract.Member, error) {
	var out contract.Member
	err := c.do(ctx, http.MethodPatch, "/campaigns/"+escape(campaignID)+"/members/"+escape(userID), req, &out)
	return out, err
}

// ListRolls lists recent dice rolls, newest last.
func (c *Client) ListRolls(ctx context.Context, campaignID string, limit int) ([]contract.DiceRoll, error) {
	var out []contract.DiceRoll
	err := c.do(ctx, http.MethodGet, withLimit("/campaigns/"+escape(campaignID)+"/rolls", limit), nil, &out)
	return out, err
}

// AppendRoll logs a roll.
func (c *Client) AppendRoll(ctx context.Context, campaignID string, req contract.RollRequest) (contract.DiceRoll, error) {
	var out contract.DiceRoll
	err := c.do(ctx, http.MethodPost, "/campaigns/"+escape(campaignID)+"/rolls", req, &out)
	return out, err
}

// ListMessages lists recent chat messages.
func (c *Client) ListMessages(ctx context.Context, campaignID string, limit int) ([]contract.ChatMessage, error) {
	var out []contract.ChatMessage
	err := c.do(ctx, http.MethodGet, withLimit("/campaigns/"+escape(campaignID)+"/messages", limit), nil, &out)
	return out, err
}

// SendMessage posts a chat message.
func (c *Client) SendMessage(ctx context.Context, campaignID string, req contract.ChatRequest) (contract.ChatMessage, error) {
	var out contract.ChatMessage
	err := c.do(ctx, http.MethodPost, "/campaigns/"+escape(campaignID)+"/messages", req, &out)
	return out, err
}
