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

const inviteCodeAttempts = 3

var (
	// ErrGuestForbidden indicates an operation reserved for registered users.
	ErrGuestForbidden = apperrors.New(apperrors.CodeAuthGuestForbidden, "guests cannot own campaigns")
	// ErrInviteNotFound indicates an invite code that matches no campaign.
	ErrInviteNotFound = apperrors.New(apperrors.CodeCampaignInviteInvalid, "invite code does not match a campaign")
)

// member loads the caller's membership. A missing row is reported as
// campaign.ErrNotMember.
func (s *Service) member(ctx context.Context, campaignID, userID string) (campaign.Member, error) {
	m, err := s.store.GetMember(ctx, strings.TrimSpace(campaignID), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return campaign.Member{}, campaign.ErrNotMember
		}
		return campaign.Member{}, err
	}
	return m, nil
}

// authorize loads the caller's membership and checks obj/act against it.
func (s *Service) authorize(ctx context.Context, caller Caller, campaignID string, obj policy.Object, act policy.Action) (campaign.Member, error) {
	m, err := s.member(ctx, campaignID, caller.UserID)
	if err != nil {
		return campaign.Member{}, err
	}
	if err := s.policy.Authorize(m, obj, act); err != nil {
		return campaign.Member{}, err
	}
	return m, nil
}

// CreateCampaign creates a campaign owned by the caller together with the GM
// membership. Guests are rejected.
func (s *Service) CreateCampaign(ctx context.Context, caller Caller, req contract.CreateCampaignRequest) (contract.Campaign, error) {
	if caller.Guest {
		return contract.Campaign{}, ErrGuestForbidden
	}
	gen := campaign.Generators{
		Now:        s.now,
		ID:         s.newID,
		InviteCode: func() (string, error) { return campaign.NewInviteCode(s.random) },
	}
	input := campaign.CreateCampaignInput{GMID: caller.UserID, Name: req.Name, Settings: req.Settings}

	var lastErr error
	for range inviteCodeAttempts {
		c, err := campaign.CreateCampaign(input, gen)
		if err != nil {
			return contract.Campaign{}, err
		}
		gm := campaign.NewGMMember(c, caller.Username)
		err = s.store.CreateCampaign(ctx, c, gm)
		if err == nil {
			out := contract.FromCampaign(c, campaign.RoleGM, campaign.StatusActive)
			s.publish(ctx, c.ID, realtime.StreamCampaigns, realtime.OpInsert, contract.FromCampaign(c, campaign.RolePlayer, ""))
			s.publish(ctx, c.ID, realtime.StreamCampaignMembers, realtime.OpInsert, contract.FromMember(gm))
			return out, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return contract.Campaign{}, err
		}
		lastErr = err
	}
	return contract.Campaign{}, lastErr
}

// ListCampaigns lists the campaigns the caller belongs to, kicked ones excluded.
func (s *Service) ListCampaigns(ctx context.Context, caller Caller) ([]contract.Campaign, error) {
	summaries, err := s.store.ListCampaignsForUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]contract.Campaign, 0, len(summaries))
	for _, summary := range summaries {
		if summary.Status == campaign.StatusKicked {
			continue
		}
		out = append(out, contract.FromCampaign(summary.Campaign, summary.Role, summary.Status))
	}
	return out, nil
}

// GetCampaign returns a campaign as seen by the caller. Notes are redacted
// for players.
func (s *Service) GetCampaign(ctx context.Context, caller Caller, campaignID string) (contract.Campaign, error) {
	m, err := s.authorize(ctx, caller, campaignID, policy.ObjectCampaign, policy.ActionRead)
	if err != nil {
		return contract.Campaign{}, err
	}
	c, err := s.store.GetCampaign(ctx, m.CampaignID)
	if err != nil {
		return contract.Campaign{}, err
	}
	return contract.FromCampaign(c, m.Role, m.Status), nil
}

// UpdateCampaign applies a partial edit. Name and settings need settings
// write; notes need notes write.
func (s *Service) UpdateCampaign(ctx context.Context, caller Caller, campaignID string, req contract.UpdateCampaignRequest) (contract.Campaign, error) {
	m, err := s.member(ctx, campaignID, caller.UserID)
	if err != nil {
		return contract.Campaign{}, err
	}
	if req.Name != nil || len(req.Settings) > 0 {
		if err := s.policy.Authorize(m, policy.ObjectSettings, policy.ActionWrite); err != nil {
			return contract.Campaign{}, err
		}
	}
	if req.Notes != nil {
		if err := s.policy.Authorize(m, policy.ObjectNotes, policy.ActionWrite); err != nil {
			return contract.Campaign{}, err
		}
	}
	if req.Name == nil && len(req.Settings) == 0 && req.Notes == nil {
		if err := s.policy.Authorize(m, policy.ObjectSettings, policy.ActionWrite); err != nil {
			return contract.Campaign{}, err
		}
	}

	current, err := s.store.GetCampaign(ctx, m.CampaignID)
	if err != nil {
		return contract.Campaign{}, err
	}
	updated, err := campaign.ApplyUpdate(current, campaign.Update{
		Name:     req.Name,
		Settings: req.Settings,
		Notes:    req.Notes,
	}, s.now)
	if err != nil {
		return contract.Campaign{}, err
	}
	if err := s.store.UpdateCampaign(ctx, updated); err != nil {
		return contract.Campaign{}, err
	}
	s.publish(ctx, updated.ID, realtime.StreamCampaigns, realtime.OpUpdate, contract.FromCampaign(updated, campaign.RolePlayer, ""))
	return contract.FromCampaign(updated, m.Role, m.Status), nil
}

// DeleteCampaign removes a campaign and everything attached to it.
func (s *Service) DeleteCampaign(ctx context.Context, caller Caller, campaignID string) error {
	m, err := s.authorize(ctx, caller, campaignID, policy.ObjectCampaign, policy.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCampaign(ctx, m.CampaignID); err != nil {
		return err
	}
	s.publish(ctx, m.CampaignID, realtime.StreamCampaigns, realtime.OpDelete, map[string]string{"id": m.CampaignID})
	return nil
}
