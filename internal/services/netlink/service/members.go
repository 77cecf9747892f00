package service

import (
	"context"
	"errors"
	"strings"

	"github.com/zenite-os/zenite/internal/campaign"
	"github.com/zenite-os/zenite/internal/campaign/policy"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	"github.com/zenite-os/zenite/internal/services/netlink/realtime"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
)

// ErrCharacterRequired indicates a join without a character to bring along.
var ErrCharacterRequired = apperrors.New(apperrors.CodeCharacterRequired, "a character is required to join a campaign")

// JoinByCode redeems an invite code with one of the caller's characters.
// Rejoining refreshes the character copy; kicked members stay out.
func (s *Service) JoinByCode(ctx context.Context, caller Caller, req contract.JoinRequest) (contract.JoinResponse, error) {
	code, err := campaign.ParseInviteCode(req.Code)
	if err != nil {
		return contract.JoinResponse{}, err
	}
	characterID := strings.TrimSpace(req.CharacterID)
	if characterID == "" {
		return contract.JoinResponse{}, ErrCharacterRequired
	}
	c, err := s.store.GetCampaignByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return contract.JoinResponse{}, ErrInviteNotFound
		}
		return contract.JoinResponse{}, err
	}
	record, err := s.store.GetCharacter(ctx, caller.UserID, characterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return contract.JoinResponse{}, ErrCharacterRequired
		}
		return contract.JoinResponse{}, err
	}

	var existing *campaign.Member
	current, err := s.store.GetMember(ctx, c.ID, caller.UserID)
	switch {
	case err == nil:
		existing = &current
	case errors.Is(err, storage.ErrNotFound):
	default:
		return contract.JoinResponse{}, err
	}

	settings, err := campaign.DecodeSettings(c.Settings)
	if err != nil {
		return contract.JoinResponse{}, err
	}
	active, err := s.store.CountActivePlayers(ctx, c.ID)
	if err != nil {
		return contract.JoinResponse{}, err
	}
	m, err := campaign.Join(c, settings, campaign.JoinInput{
		UserID:      caller.UserID,
		Username:    caller.Username,
		CharacterID: record.ID,
		CharData:    record.Sheet,
	}, existing, active, s.now)
	if err != nil {
		return contract.JoinResponse{}, err
	}
	if existing != nil {
		err = s.store.PutMember(ctx, m)
	} else {
		err = s.store.AddMember(ctx, m, settings.MaxPlayers)
	}
	if err != nil {
		return contract.JoinResponse{}, err
	}

	op := realtime.OpInsert
	if existing != nil {
		op = realtime.OpUpdate
	}
	out := contract.FromMember(m)
	s.publish(ctx, c.ID, realtime.StreamCampaignMembers, op, out)
	return contract.JoinResponse{
		Campaign: contract.FromCampaign(c, m.Role, m.Status),
		Member:   out,
	}, nil
}

// ListMembers lists every membership row of a campaign.
func (s *Service) ListMembers(ctx context.Context, caller Caller, campaignID string) ([]contract.Member, error) {
	m, err := s.authorize(ctx, caller, campaignID, policy.ObjectMemberData, policy.ActionRead)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, m.CampaignID)
	if err != nil {
		return nil, err
	}
	out := make([]contract.Member, 0, len(members))
	for _, member := range members {
		out = append(out, contract.FromMember(member))
	}
	return out, nil
}

// UpdateMember edits a membership. Members may update their own character
// copy; status changes and edits of other members are GM-only.
func (s *Service) UpdateMember(ctx context.Context, caller Caller, campaignID, userID string, req contract.UpdateMemberRequest) (contract.Member, error) {
	actor, err := s.member(ctx, campaignID, caller.UserID)
	if err != nil {
		return contract.Member{}, err
	}
	userID = strings.TrimSpace(userID)
	obj := policy.ObjectMemberData
	if userID == caller.UserID && req.Status == nil {
		obj = policy.ObjectOwnData
	}
	if err := s.policy.Authorize(actor, obj, policy.ActionWrite); err != nil {
		return contract.Member{}, err
	}

	target := actor
	if userID != caller.UserID {
		target, err = s.store.GetMember(ctx, actor.CampaignID, userID)
		if err != nil {
			return contract.Member{}, err
		}
	}

	update := campaign.MemberUpdate{CharData: req.CharData}
	if req.Status != nil {
		status, err := campaign.ParseStatus(*req.Status)
		if err != nil {
			return contract.Member{}, err
		}
		update.Status = &status
	}
	updated, err := campaign.ApplyMemberUpdate(target, update, s.now)
	if err != nil {
		return contract.Member{}, err
	}
	if err := s.store.PutMember(ctx, updated); err != nil {
		return contract.Member{}, err
	}
	out := contract.FromMember(updated)
	s.publish(ctx, updated.CampaignID, realtime.StreamCampaignMembers, realtime.OpUpdate, out)
	return out, nil
}
