package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zenite-os/zenite/internal/services/netlink/storage"
)

// DefaultLogLimit applies when callers pass a non-positive limit.
const DefaultLogLimit = 50

// AppendDiceRoll inserts a dice log row.
func (s *Store) AppendDiceRoll(ctx context.Context, roll storage.DiceRoll) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(roll.ID) == "" || strings.TrimSpace(roll.CampaignID) == "" {
		return fmt.Errorf("roll id and campaign id are required")
	}
	if roll.CreatedAt.IsZero() {
		roll.CreatedAt = time.Now().UTC()
	}
	diceJSON, err := json.Marshal(roll.Dice)
	if err != nil {
		return fmt.Errorf("encode dice: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO dice_logs (id, campaign_id, user_id, sender_name, formula, dice_json, natural_roll, modifier, total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		roll.ID,
		roll.CampaignID,
		roll.UserID,
		roll.SenderName,
		roll.Formula,
		string(diceJSON),
		roll.Natural,
		roll.Modifier,
		roll.Total,
		timeToUnixMillis(roll.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("append dice roll: %w", err)
	}
	return nil
}

// ListDiceRolls returns the most recent rolls, oldest first.
func (s *Store) ListDiceRolls(ctx context.Context, campaignID string, limit int) ([]storage.DiceRoll, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, campaign_id, user_id, sender_name, formula, dice_json, natural_roll, modifier, total, created_at
		 FROM (
		   SELECT * FROM dice_logs WHERE campaign_id = ?
		   ORDER BY created_at DESC, id DESC LIMIT ?
		 )
		 ORDER BY created_at, id`,
		strings.TrimSpace(campaignID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list dice rolls: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	rolls := make([]storage.DiceRoll, 0)
	for rows.Next() {
		var roll storage.DiceRoll
		var diceJSON string
		var createdAt int64
		if err := rows.Scan(&roll.ID, &roll.CampaignID, &roll.UserID, &roll.SenderName, &roll.Formula, &diceJSON, &roll.Natural, &roll.Modifier, &roll.Total, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dice roll: %w", err)
		}
		if err := json.Unmarshal([]byte(diceJSON), &roll.Dice); err != nil {
			return nil, fmt.Errorf("decode dice: %w", err)
		}
		roll.CreatedAt = unixMillisToTime(createdAt)
		rolls = append(rolls, roll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dice rolls: %w", err)
	}
	return rolls, nil
}

// AppendChatMessage inserts a chat log row.
func (s *Store) AppendChatMessage(ctx context.Context, msg storage.ChatMessage) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(msg.ID) == "" || strings.TrimSpace(msg.CampaignID) == "" {
		return fmt.Errorf("message id and campaign id are required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO chat_logs (id, campaign_id, user_id, sender_name, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.CampaignID, msg.UserID, msg.SenderName, msg.Body, timeToUnixMillis(msg.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns the most recent messages, oldest first.
func (s *Store) ListChatMessages(ctx context.Context, campaignID string, limit int) ([]storage.ChatMessage, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, campaign_id, user_id, sender_name, body, created_at
		 FROM (
		   SELECT * FROM chat_logs WHERE campaign_id = ?
		   ORDER BY created_at DESC, id DESC LIMIT ?
		 )
		 ORDER BY created_at, id`,
		strings.TrimSpace(campaignID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	messages := make([]storage.ChatMessage, 0)
	for rows.Next() {
		var msg storage.ChatMessage
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.CampaignID, &msg.UserID, &msg.SenderName, &msg.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.CreatedAt = unixMillisToTime(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return messages, nil
}
