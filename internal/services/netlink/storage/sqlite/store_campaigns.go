package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zenite-os/zenite/internal/campaign"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
)

const campaignColumns = `c.id, c.gm_id, c.name, c.invite_code, c.settings_json, c.notes, c.created_at, c.updated_at`

// CreateCampaign inserts a campaign together with its GM membership.
func (s *Store) CreateCampaign(ctx context.Context, c campaign.Campaign, gm campaign.Member) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.GMID) == "" {
		return fmt.Errorf("campaign id and gm id are required")
	}
	if strings.TrimSpace(c.InviteCode) == "" {
		return fmt.Errorf("invite code is required")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO campaigns (id, gm_id, name, invite_code, settings_json, notes, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID,
			c.GMID,
			c.Name,
			c.InviteCode,
			[]byte(c.Settings),
			c.Notes,
			timeToUnixMillis(c.CreatedAt),
			timeToUnixMillis(c.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert campaign: %w", err)
		}
		if err := putMember(ctx, tx, gm); err != nil {
			return err
		}
		return nil
	})
}

// GetCampaign fetches a campaign by id.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (campaign.Campaign, error) {
	return s.getCampaign(ctx, "id", strings.TrimSpace(campaignID))
}

// GetCampaignByInviteCode fetches a campaign by its invite code.
func (s *Store) GetCampaignByInviteCode(ctx context.Context, code string) (campaign.Campaign, error) {
	return s.getCampaign(ctx, "invite_code", strings.ToUpper(strings.TrimSpace(code)))
}

func (s *Store) getCampaign(ctx context.Context, column, value string) (campaign.Campaign, error) {
	if err := s.ready(ctx); err != nil {
		return campaign.Campaign{}, err
	}
	if value == "" {
		return campaign.Campaign{}, fmt.Errorf("campaign %s is required", column)
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns c WHERE c.`+column+` = ?`, value)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return campaign.Campaign{}, storage.ErrNotFound
		}
		return campaign.Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListCampaignsForUser lists campaigns the user belongs to, with the user's
// role and status, most recently updated first.
func (s *Store) ListCampaignsForUser(ctx context.Context, userID string) ([]storage.CampaignSummary, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+campaignColumns+`, m.role, m.status
		 FROM campaigns c
		 JOIN campaign_members m ON m.campaign_id = c.id
		 WHERE m.user_id = ?
		 ORDER BY c.updated_at DESC, c.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	summaries := make([]storage.CampaignSummary, 0)
	for rows.Next() {
		var summary storage.CampaignSummary
		var settings []byte
		var createdAt, updatedAt int64
		var role, status string
		c := &summary.Campaign
		if err := rows.Scan(&c.ID, &c.GMID, &c.Name, &c.InviteCode, &settings, &c.Notes, &createdAt, &updatedAt, &role, &status); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		c.Settings = rawJSON(settings)
		c.CreatedAt = unixMillisToTime(createdAt)
		c.UpdatedAt = unixMillisToTime(updatedAt)
		summary.Role = campaign.Role(role)
		summary.Status = campaign.Status(status)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return summaries, nil
}

// UpdateCampaign writes name, settings and notes.
func (s *Store) UpdateCampaign(ctx context.Context, c campaign.Campaign) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE campaigns SET name = ?, settings_json = ?, notes = ?, updated_at = ? WHERE id = ?`,
		c.Name, []byte(c.Settings), c.Notes, timeToUnixMillis(c.UpdatedAt), strings.TrimSpace(c.ID),
	)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteCampaign removes a campaign and every row scoped to it.
func (s *Store) DeleteCampaign(ctx context.Context, campaignID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return fmt.Errorf("campaign id is required")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []struct{ label, query string }{
			{"dice logs", `DELETE FROM dice_logs WHERE campaign_id = ?`},
			{"chat logs", `DELETE FROM chat_logs WHERE campaign_id = ?`},
			{"members", `DELETE FROM campaign_members WHERE campaign_id = ?`},
		} {
			if _, err := tx.ExecContext(ctx, stmt.query, campaignID); err != nil {
				return fmt.Errorf("delete campaign %s: %w", stmt.label, err)
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, campaignID)
		if err != nil {
			return fmt.Errorf("delete campaign: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// GetMember fetches one membership row.
func (s *Store) GetMember(ctx context.Context, campaignID, userID string) (campaign.Member, error) {
	if err := s.ready(ctx); err != nil {
		return campaign.Member{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+memberColumns+` FROM campaign_members WHERE campaign_id = ? AND user_id = ?`,
		strings.TrimSpace(campaignID), strings.TrimSpace(userID),
	)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return campaign.Member{}, storage.ErrNotFound
		}
		return campaign.Member{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListMembers lists a campaign's members in join order.
func (s *Store) ListMembers(ctx context.Context, campaignID string) ([]campaign.Member, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+memberColumns+` FROM campaign_members WHERE campaign_id = ? ORDER BY joined_at, user_id`,
		strings.TrimSpace(campaignID),
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	members := make([]campaign.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// PutMember upserts a membership row.
func (s *Store) PutMember(ctx context.Context, m campaign.Member) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return putMember(ctx, s.sqlDB, m)
}

// AddMember inserts m after checking the player cap in one transaction.
func (s *Store) AddMember(ctx context.Context, m campaign.Member, maxPlayers int) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if maxPlayers > 0 {
			n, err := countActivePlayers(ctx, tx, m.CampaignID)
			if err != nil {
				return err
			}
			if n >= maxPlayers {
				return campaign.ErrCampaignFull
			}
		}
		return putMember(ctx, tx, m)
	})
}

// CountActivePlayers counts active non-GM members.
func (s *Store) CountActivePlayers(ctx context.Context, campaignID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return countActivePlayers(ctx, s.sqlDB, campaignID)
}

func countActivePlayers(ctx context.Context, db queryRower, campaignID string) (int, error) {
	var n int
	err := db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM campaign_members WHERE campaign_id = ? AND role = ? AND status = ?`,
		strings.TrimSpace(campaignID), string(campaign.RolePlayer), string(campaign.StatusActive),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active players: %w", err)
	}
	return n, nil
}

// DeleteKickedMembersBefore removes kicked rows not updated since cutoff.
func (s *Store) DeleteKickedMembersBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM campaign_members WHERE status = ? AND updated_at < ?`,
		string(campaign.StatusKicked), timeToUnixMillis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("delete kicked members: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted members: %w", err)
	}
	return int(n), nil
}

const memberColumns = `campaign_id, user_id, username, role, status, character_id, char_data, joined_at, updated_at`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putMember(ctx context.Context, db execer, m campaign.Member) error {
	m.CampaignID = strings.TrimSpace(m.CampaignID)
	m.UserID = strings.TrimSpace(m.UserID)
	if m.CampaignID == "" || m.UserID == "" {
		return fmt.Errorf("campaign id and user id are required")
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = m.UpdatedAt
	}

	_, err := db.ExecContext(
		ctx,
		`INSERT INTO campaign_members (`+memberColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(campaign_id, user_id) DO UPDATE SET
		   username = excluded.username,
		   role = excluded.role,
		   status = excluded.status,
		   character_id = excluded.character_id,
		   char_data = excluded.char_data,
		   updated_at = excluded.updated_at`,
		m.CampaignID,
		m.UserID,
		m.Username,
		string(m.Role),
		string(m.Status),
		m.CharacterID,
		nullableJSON(m.CharData),
		timeToUnixMillis(m.JoinedAt),
		timeToUnixMillis(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put member: %w", err)
	}
	return nil
}

func scanCampaign(row rowScanner) (campaign.Campaign, error) {
	var c campaign.Campaign
	var settings []byte
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.GMID, &c.Name, &c.InviteCode, &settings, &c.Notes, &createdAt, &updatedAt); err != nil {
		return campaign.Campaign{}, err
	}
	c.Settings = rawJSON(settings)
	c.CreatedAt = unixMillisToTime(createdAt)
	c.UpdatedAt = unixMillisToTime(updatedAt)
	return c, nil
}

func scanMember(row rowScanner) (campaign.Member, error) {
	var m campaign.Member
	var role, status string
	var charData []byte
	var joinedAt, updatedAt int64
	if err := row.Scan(&m.CampaignID, &m.UserID, &m.Username, &role, &status, &m.CharacterID, &charData, &joinedAt, &updatedAt); err != nil {
		return campaign.Member{}, err
	}
	m.Role = campaign.Role(role)
	m.Status = campaign.Status(status)
	m.CharData = rawJSON(charData)
	m.JoinedAt = unixMillisToTime(joinedAt)
	m.UpdatedAt = unixMillisToTime(updatedAt)
	return m, nil
}
