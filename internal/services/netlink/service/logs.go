package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zenite-os/zenite/internal/campaign/policy"
	"github.com/zenite-os/zenite/internal/dice"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	"github.com/zenite-os/zenite/internal/services/netlink/realtime"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
)

const (
	// DefaultLogLimit is how many log rows a list returns by default.
	DefaultLogLimit = 50
	// MaxLogLimit caps the limit a caller may request.
	MaxLogLimit = 200
	// MaxChatBodyLength bounds chat messages in runes.
	MaxChatBodyLength = 2000

	maxSenderNameLength = 60
)

var (
	// ErrChatBodyEmpty indicates a blank chat message.
	ErrChatBodyEmpty = apperrors.New(apperrors.CodeChatBodyEmpty, "chat message is empty")
	// ErrChatBodyTooLong indicates a chat message over MaxChatBodyLength runes.
	ErrChatBodyTooLong = apperrors.New(apperrors.CodeChatBodyTooLong, "chat message is too long")
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLogLimit
	case limit > MaxLogLimit:
		return MaxLogLimit
	default:
		return limit
	}
}

func senderName(requested string, caller Caller) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = caller.Username
	}
	if runes := []rune(name); len(runes) > maxSenderNameLength {
		name = string(runes[:maxSenderNameLength])
	}
	return name
}

func formulaError(raw string, reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeDiceFormulaInvalid,
		fmt.Sprintf("dice roll %q invalid: %s", raw, reason),
		map[string]string{"Formula": raw},
	)
}

// ListRolls returns the most recent dice rolls of a campaign, oldest first.
func (s *Service) ListRolls(ctx context.Context, caller Caller, campaignID string, limit int) ([]contract.DiceRoll, error) {
	m, err := s.authorize(ctx, caller, campaignID, policy.ObjectRoll, policy.ActionRead)
	if err != nil {
		return nil, err
	}
	rolls, err := s.store.ListDiceRolls(ctx, m.CampaignID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]contract.DiceRoll, 0, len(rolls))
	for _, roll := range rolls {
		out = append(out, contract.FromDiceRoll(roll))
	}
	return out, nil
}

// resolveRoll checks a client-rolled result against its formula, or rolls
// on the server when no dice were sent.
func (s *Service) resolveRoll(req contract.RollRequest) (dice.Result, error) {
	formula, err := dice.ParseFormula(req.Formula)
	if err != nil {
		return dice.Result{}, formulaError(req.Formula, err.Error())
	}
	if len(req.Dice) == 0 {
		result, err := dice.Roll(formula, s.random)
		if err != nil {
			return dice.Result{}, fmt.Errorf("roll %s: %w", formula, err)
		}
		return result, nil
	}

	if len(req.Dice) != formula.Count {
		return dice.Result{}, formulaError(req.Formula, fmt.Sprintf("expected %d dice, got %d", formula.Count, len(req.Dice)))
	}
	natural := 0
	for _, die := range req.Dice {
		if die < 1 || die > formula.Sides {
			return dice.Result{}, formulaError(req.Formula, fmt.Sprintf("die %d out of range", die))
		}
		natural += die
	}
	if req.Natural != natural || req.Modifier != formula.Modifier || req.Total != natural+formula.Modifier {
		return dice.Result{}, formulaError(req.Formula, "totals do not match dice")
	}
	return dice.Result{
		Formula: formula,
		Dice:    append([]int(nil), req.Dice...),
		Natural: natural,
		Total:   req.Total,
	}, nil
}

// AppendRoll logs a dice roll and publishes it to the campaign.
func (s *Service) AppendRoll(ctx context.Context, caller Caller, campaignID string, req contract.RollRequest) (contract.DiceRoll, error) {
	m, err := s.authorize(ctx, caller, campaignID, policy.ObjectRoll, policy.ActionWrite)
	if err != nil {
		return contract.DiceRoll{}, err
	}
	result, err := s.resolveRoll(req)
	if err != nil {
		return contract.DiceRoll{}, err
	}
	rollID, err := s.newID()
	if err != nil {
		return contract.DiceRoll{}, fmt.Errorf("generate roll id: %w", err)
	}
	roll := storage.DiceRoll{
		ID:         rollID,
		CampaignID: m.CampaignID,
		UserID:     caller.UserID,
		SenderName: senderName(req.SenderName, caller),
		Formula:    result.Formula.String(),
		Dice:       result.Dice,
		Natural:    result.Natural,
		Modifier:   result.Formula.Modifier,
		Total:      result.Total,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.AppendDiceRoll(ctx, roll); err != nil {
		return contract.DiceRoll{}, err
	}
	out := contract.FromDiceRoll(roll)
	s.publish(ctx, roll.CampaignID, realtime.StreamDiceRolls, realtime.OpInsert, out)
	return out, nil
}

// ListMessages returns the most recent chat messages, oldest first.
func (s *Service) ListMessages(ctx context.Context, caller Caller, campaignID string, limit int) ([]contract.ChatMessage, error) {
	m, err := s.authorize(ctx, caller, campaignID, policy.ObjectChat, policy.ActionRead)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListChatMessages(ctx, m.CampaignID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]contract.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, contract.FromChatMessage(msg))
	}
	return out, nil
}

// SendMessage posts a chat message to the campaign.
func (s *Service) SendMessage(ctx context.Context, caller Caller, campaignID string, req contract.ChatRequest) (contract.ChatMessage, error) {
	m, err := s.authorize(ctx, caller, campaignID, policy.ObjectChat, policy.ActionWrite)
	if err != nil {
		return contract.ChatMessage{}, err
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return contract.ChatMessage{}, ErrChatBodyEmpty
	}
	if utf8.RuneCountInString(body) > MaxChatBodyLength {
		return contract.ChatMessage{}, ErrChatBodyTooLong
	}
	msgID, err := s.newID()
	if err != nil {
		return contract.ChatMessage{}, fmt.Errorf("generate message id: %w", err)
	}
	msg := storage.ChatMessage{
		ID:         msgID,
		CampaignID: m.CampaignID,
		UserID:     caller.UserID,
		SenderName: senderName(req.SenderName, caller),
		Body:       body,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.AppendChatMessage(ctx, msg); err != nil {
		return contract.ChatMessage{}, err
	}
	out := contract.FromChatMessage(msg)
	s.publish(ctx, msg.CampaignID, realtime.StreamChatMessages, realtime.OpInsert, out)
	return out, nil
}
