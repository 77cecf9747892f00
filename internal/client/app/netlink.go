package app

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/zenite-os/zenite/internal/campaign"
	"github.com/zenite-os/zenite/internal/client/dicelog"
	"github.com/zenite-os/zenite/internal/client/realtime"
	"github.com/zenite-os/zenite/internal/dice"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/router"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	wire "github.com/zenite-os/zenite/internal/services/netlink/realtime"
)

const (
	// ChatLimit is how many chat messages the table keeps.
	ChatLimit    = 100
	historyLimit = 50
)

var (
	errNoTable          = apperrors.New(apperrors.CodeCampaignMemberRequired, "enter a campaign first")
	errAwaitingApproval = apperrors.New(apperrors.CodeCampaignMemberRequired, "waiting for GM approval")
)

func (s *Store) netlinkHook(ctx context.Context, route router.Route) error {
	if route.Param == "" {
		s.leaveTable()
		return nil
	}
	return s.EnterNetLink(ctx, route.Param)
}

// EnterNetLink opens the campaign behind code. Without characters the code
// is stashed and the wizard takes over; an existing membership is entered
// directly; otherwise the active character joins.
func (s *Store) EnterNetLink(ctx context.Context, code string) error {
	code, err := campaign.ParseInviteCode(code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.netlink.Campaign != nil && s.netlink.Campaign.InviteCode == code {
		s.mu.Unlock()
		return nil
	}
	hasCharacters := len(s.sheet.Characters) > 0
	activeID := s.sheet.ActiveID
	if !hasCharacters {
		s.netlink.PendingCode = code
	}
	s.mu.Unlock()
	if !hasCharacters {
		return router.RedirectTo(router.Route{Name: router.NameWizard})
	}

	s.leaveTable()
	gen := s.currentGen()

	campaigns, err := s.backend.ListCampaigns(ctx)
	if err != nil {
		return err
	}
	var joined contract.Campaign
	idx := slices.IndexFunc(campaigns, func(c contract.Campaign) bool { return c.InviteCode == code })
	if idx >= 0 {
		joined = campaigns[idx]
	} else {
		resp, err := s.backend.JoinByCode(ctx, contract.JoinRequest{Code: code, CharacterID: activeID})
		if err != nil {
			return err
		}
		joined = resp.Campaign
		joined.Role = resp.Member.Role
		joined.Status = resp.Member.Status
	}

	if !s.stillAt(gen) {
		return nil
	}
	if joined.Status == string(campaign.StatusPending) {
		s.notify(Toast{Kind: ToastInfo, Code: errAwaitingApproval.Code, Message: apperrors.UserMessage(errAwaitingApproval, s.locale)})
		return router.RedirectTo(router.Dashboard())
	}
	return s.enterTable(ctx, joined)
}

// enterTable makes c the active campaign and subscribes to it.
func (s *Store) enterTable(ctx context.Context, c contract.Campaign) error {
	s.mu.Lock()
	s.tableGen++
	gen := s.tableGen
	s.netlink.Campaign = &c
	s.netlink.Members = nil
	s.netlink.Chat = nil
	s.netlink.Initiative = nil
	s.netlink.Music = nil
	s.netlink.MemberData = nil
	s.mu.Unlock()
	s.dice.Reset()

	if err := s.channel.Enter(ctx, c.ID); err != nil {
		return err
	}
	return s.reload(ctx, gen, c.ID, true)
}

// leaveTable drops the active campaign, if any.
func (s *Store) leaveTable() {
	s.mu.Lock()
	active := s.netlink.Campaign != nil
	if active {
		s.tableGen++
		s.netlink.Campaign = nil
		s.netlink.Members = nil
		s.netlink.Chat = nil
		s.netlink.Status = realtime.StatusClosed
	}
	s.mu.Unlock()
	if active {
		s.dice.Reset()
		s.channel.Leave()
	}
}

func (s *Store) currentGen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableGen
}

func (s *Store) stillAt(gen uint64) bool {
	return s.currentGen() == gen
}

// activeTable returns the campaign id and generation of the current table.
func (s *Store) activeTable() (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.netlink.Campaign == nil {
		return "", 0, errNoTable
	}
	return s.netlink.Campaign.ID, s.tableGen, nil
}

// reload fetches members, chat and optionally the dice history.
func (s *Store) reload(ctx context.Context, gen uint64, campaignID string, withRolls bool) error {
	members, err := s.backend.ListMembers(ctx, campaignID)
	if err != nil {
		return err
	}
	messages, err := s.backend.ListMessages(ctx, campaignID, ChatLimit)
	if err != nil {
		return err
	}
	var rolls []contract.DiceRoll
	if withRolls {
		if rolls, err = s.backend.ListRolls(ctx, campaignID, historyLimit); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.tableGen != gen {
		s.mu.Unlock()
		return nil
	}
	s.netlink.Members = members
	s.netlink.Chat = mergeChat(messages, s.netlink.Chat)
	s.mu.Unlock()
	if withRolls {
		entries := make([]dicelog.Entry, 0, len(rolls))
		for _, row := range rolls {
			entries = append(entries, entryFromRow(row))
		}
		s.dice.Replace(entries)
	}
	return nil
}

// RollDice rolls locally, shows the result at once and confirms it with the
// server.
func (s *Store) RollDice(ctx context.Context, formula string) (dicelog.Entry, error) {
	campaignID, gen, err := s.activeTable()
	if err != nil {
		return dicelog.Entry{}, err
	}
	result, err := dice.RollString(formula, s.random)
	if err != nil {
		wrapped := apperrors.WithMetadata(apperrors.CodeDiceFormulaInvalid, err.Error(), map[string]string{"Formula": strings.TrimSpace(formula)})
		s.toast(ToastError, wrapped)
		return dicelog.Entry{}, wrapped
	}

	local := s.dice.AppendLocal(dicelog.Entry{
		SenderName: s.senderName(),
		Formula:    result.Formula.String(),
		Dice:       result.Dice,
		Natural:    result.Natural,
		Modifier:   result.Formula.Modifier,
		Total:      result.Total,
		CreatedAt:  s.now().UTC(),
	})

	row, err := s.backend.AppendRoll(ctx, campaignID, contract.RollRequest{
		Formula:    local.Formula,
		SenderName: local.SenderName,
		Dice:       local.Dice,
		Natural:    local.Natural,
		Modifier:   local.Modifier,
		Total:      local.Total,
	})
	if !s.stillAt(gen) {
		return local, err
	}
	if err != nil {
		s.dice.Fail(local.ID)
		s.toast(ToastError, err)
		local.Failed = true
		return local, err
	}
	s.dice.Confirm(local.ID, row.ID)
	return entryFromRow(row), nil
}

// SendChat posts a message to the active table.
func (s *Store) SendChat(ctx context.Context, body string) (contract.ChatMessage, error) {
	campaignID, gen, err := s.activeTable()
	if err != nil {
		return contract.ChatMessage{}, err
	}
	msg, err := s.backend.SendMessage(ctx, campaignID, contract.ChatRequest{Body: body, SenderName: s.senderName()})
	if err != nil {
		s.toast(ToastError, err)
		return contract.ChatMessage{}, err
	}
	s.mu.Lock()
	if s.tableGen == gen {
		s.netlink.Chat = mergeChat(s.netlink.Chat, []contract.ChatMessage{msg})
	}
	s.mu.Unlock()
	return msg, nil
}

// Broadcast sends a GM event to the table.
func (s *Store) Broadcast(event wire.BroadcastEvent, payload any) error {
	if _, _, err := s.activeTable(); err != nil {
		return err
	}
	if err := s.channel.Broadcast(event, payload); err != nil {
		s.toast(ToastError, err)
		return err
	}
	return nil
}

// UpdateSettings edits the campaign settings locally and schedules a
// debounced save.
func (s *Store) UpdateSettings(settings json.RawMessage) error {
	s.mu.Lock()
	if s.netlink.Campaign == nil {
		s.mu.Unlock()
		return errNoTable
	}
	s.netlink.Campaign.Settings = slices.Clone(settings)
	campaignID := s.netlink.Campaign.ID
	s.mu.Unlock()
	s.settings.Trigger(campaignID)
	return nil
}

func (s *Store) saveSettings(ctx context.Context, campaignID string) error {
	s.mu.Lock()
	if s.netlink.Campaign == nil || s.netlink.Campaign.ID != campaignID {
		s.mu.Unlock()
		return nil
	}
	settings := slices.Clone(s.netlink.Campaign.Settings)
	gen := s.tableGen
	s.mu.Unlock()

	updated, err := s.backend.UpdateCampaign(ctx, campaignID, contract.UpdateCampaignRequest{Settings: settings})
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.tableGen == gen && s.netlink.Campaign != nil {
		s.netlink.Campaign.Settings = updated.Settings
		s.netlink.Campaign.UpdatedAt = updated.UpdatedAt
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) senderName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.sheet.Active(); ok {
		return c.Name
	}
	return s.session.Username
}

func (s *Store) onStatus(campaignID string, status realtime.Status) {
	s.mu.Lock()
	if s.netlink.Campaign != nil && s.netlink.Campaign.ID == campaignID {
		s.netlink.Status = status
	}
	s.mu.Unlock()
}

// onSubscribed refreshes chat and members, which may have moved while the
// channel was down.
func (s *Store) onSubscribed(campaignID string) {
	s.mu.Lock()
	gen := s.tableGen
	active := s.netlink.Campaign != nil && s.netlink.Campaign.ID == campaignID
	s.mu.Unlock()
	if !active {
		return
	}
	s.goBackground(func() {
		if err := s.reload(context.Background(), gen, campaignID, false); err != nil {
			s.logger.Warn("reload table after subscribe", logging.Fields{"campaign_id": campaignID, "error": err.Error()})
		}
	})
}

func (s *Store) onGiveUp(_ string, err error) {
	if apperrors.GetCode(err) == apperrors.CodeUnknown {
		err = apperrors.Wrap(apperrors.CodeRealtimeUnavailable, "realtime channel gave up", err)
	}
	s.toast(ToastWarning, err)
}

func (s *Store) onChange(change realtime.Change) {
	s.mu.Lock()
	if s.netlink.Campaign == nil || s.netlink.Campaign.ID != change.CampaignID {
		s.mu.Unlock()
		return
	}
	userID := s.session.UserID
	s.mu.Unlock()

	switch change.Stream {
	case wire.StreamDiceRolls:
		var row contract.DiceRoll
		if change.Op == wire.OpInsert && json.Unmarshal(change.Record, &row) == nil {
			s.dice.ApplyRemote(entryFromRow(row))
		}
	case wire.StreamChatMessages:
		var msg contract.ChatMessage
		if change.Op == wire.OpInsert && json.Unmarshal(change.Record, &msg) == nil {
			s.mu.Lock()
			s.netlink.Chat = mergeChat(s.netlink.Chat, []contract.ChatMessage{msg})
			s.mu.Unlock()
		}
	case wire.StreamCampaignMembers:
		var member contract.Member
		if json.Unmarshal(change.Record, &member) != nil {
			return
		}
		s.mu.Lock()
		s.netlink.Members = upsertMember(s.netlink.Members, member, change.Op == wire.OpDelete)
		s.mu.Unlock()
		if member.UserID == userID && (change.Op == wire.OpDelete || member.Status == string(campaign.StatusKicked)) {
			s.toast(ToastWarning, campaign.ErrKicked)
			s.leaveTable()
		}
	case wire.StreamCampaigns:
		s.applyCampaignChange(change)
	}
}

func (s *Store) applyCampaignChange(change realtime.Change) {
	if change.Op == wire.OpDelete {
		s.notify(Toast{Kind: ToastWarning, Code: apperrors.CodeNotFound, Message: apperrors.UserMessage(apperrors.New(apperrors.CodeNotFound, "campaign deleted"), s.locale)})
		s.leaveTable()
		return
	}
	var row struct {
		Name     string          `json:"name"`
		Settings json.RawMessage `json:"settings"`
	}
	if json.Unmarshal(change.Record, &row) != nil {
		return
	}
	s.mu.Lock()
	if s.netlink.Campaign != nil {
		if row.Name != "" {
			s.netlink.Campaign.Name = row.Name
		}
		if len(row.Settings) > 0 {
			s.netlink.Campaign.Settings = row.Settings
		}
	}
	s.mu.Unlock()
}

func (s *Store) onBroadcast(b realtime.Broadcast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.netlink.Campaign == nil || s.netlink.Campaign.ID != b.CampaignID {
		return
	}
	switch b.Event {
	case wire.BroadcastInitiative:
		s.netlink.Initiative = b.Payload
	case wire.BroadcastMusic:
		s.netlink.Music = b.Payload
	case wire.BroadcastMemberData:
		s.netlink.MemberData = b.Payload
	}
}

func entryFromRow(row contract.DiceRoll) dicelog.Entry {
	return dicelog.Entry{
		ID:         row.ID,
		SenderName: row.SenderName,
		Formula:    row.Formula,
		Dice:       row.Dice,
		Natural:    row.Natural,
		Modifier:   row.Modifier,
		Total:      row.Total,
		CreatedAt:  row.CreatedAt,
	}
}

// mergeChat appends the messages of extra missing from base, keeping the
// most recent ChatLimit.
func mergeChat(base, extra []contract.ChatMessage) []contract.ChatMessage {
	out := slices.Clone(base)
	for _, msg := range extra {
		if slices.ContainsFunc(out, func(m contract.ChatMessage) bool { return m.ID == msg.ID }) {
			continue
		}
		out = append(out, msg)
	}
	if over := len(out) - ChatLimit; over > 0 {
		out = out[over:]
	}
	return out
}

func upsertMember(members []contract.Member, member contract.Member, remove bool) []contract.Member {
	idx := slices.IndexFunc(members, func(m contract.Member) bool { return m.UserID == member.UserID })
	switch {
	case remove && idx >= 0:
		return slices.Delete(slices.Clone(members), idx, idx+1)
	case remove:
		return members
	case idx >= 0:
		out := slices.Clone(members)
		out[idx] = member
		return out
	default:
		return append(slices.Clone(members), member)
	}
}
