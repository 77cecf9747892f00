package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zenite-os/zenite/internal/campaign"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
	"github.com/zenite-os/zenite/internal/services/netlink/user"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultLogLimit applies when callers pass a non-positive limit.
const DefaultLogLimit = 50

// Store provides gorm-backed persistence for NetLink data.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("resolve sql db: %w", err)
	}
	return sqlDB.Close()
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return s.db.WithContext(ctx), nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func notFoundOr(err error, format string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return fmt.Errorf(format+": %w", err)
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// PutUser inserts a user record.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("user id and username are required")
	}
	model := userModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Guest:        u.Guest,
		CreatedAt:    utc(u.CreatedAt),
		UpdatedAt:    utc(u.UpdatedAt),
	}
	if err := db.Create(&model).Error; err != nil {
		if isDuplicate(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	return s.getUser(ctx, "id = ?", strings.TrimSpace(userID))
}

// GetUserByUsername fetches a user by canonical username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return s.getUser(ctx, "username = ?", strings.ToLower(strings.TrimSpace(username)))
}

func (s *Store) getUser(ctx context.Context, where, value string) (user.User, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return user.User{}, err
	}
	var model userModel
	if err := db.Where(where, value).Take(&model).Error; err != nil {
		return user.User{}, notFoundOr(err, "get user")
	}
	return user.User{
		ID:           model.ID,
		Username:     model.Username,
		PasswordHash: model.PasswordHash,
		Guest:        model.Guest,
		CreatedAt:    utc(model.CreatedAt),
		UpdatedAt:    utc(model.UpdatedAt),
	}, nil
}

// GetProfileEntry loads one profile key.
func (s *Store) GetProfileEntry(ctx context.Context, userID, key string) (storage.ProfileEntry, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return storage.ProfileEntry{}, err
	}
	var model profileEntryModel
	if err := db.Where("user_id = ? AND key = ?", strings.TrimSpace(userID), strings.TrimSpace(key)).Take(&model).Error; err != nil {
		return storage.ProfileEntry{}, notFoundOr(err, "get profile entry")
	}
	return storage.ProfileEntry{
		UserID:    model.UserID,
		Key:       model.Key,
		Value:     json.RawMessage(model.ValueJSON),
		UpdatedAt: utc(model.UpdatedAt),
	}, nil
}

// PutProfileEntry upserts one profile key.
func (s *Store) PutProfileEntry(ctx context.Context, entry storage.ProfileEntry) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(entry.UserID) == "" || strings.TrimSpace(entry.Key) == "" {
		return fmt.Errorf("user id and key are required")
	}
	if len(entry.Value) == 0 {
		return fmt.Errorf("profile value is required")
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	model := profileEntryModel{
		UserID:    strings.TrimSpace(entry.UserID),
		Key:       strings.TrimSpace(entry.Key),
		ValueJSON: []byte(entry.Value),
		UpdatedAt: utc(entry.UpdatedAt),
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value_json", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("put profile entry: %w", err)
	}
	return nil
}

// DeleteProfileEntry removes one profile key.
func (s *Store) DeleteProfileEntry(ctx context.Context, userID, key string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	err = db.Where("user_id = ? AND key = ?", strings.TrimSpace(userID), strings.TrimSpace(key)).
		Delete(&profileEntryModel{}).Error
	if err != nil {
		return fmt.Errorf("delete profile entry: %w", err)
	}
	return nil
}

// ListCharacters returns an owner's characters, most recently updated first.
func (s *Store) ListCharacters(ctx context.Context, ownerID string) ([]storage.CharacterRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var models []characterModel
	if err := db.Where("owner_id = ?", strings.TrimSpace(ownerID)).Order("updated_at DESC, id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	records := make([]storage.CharacterRecord, 0, len(models))
	for _, model := range models {
		records = append(records, characterFromModel(model))
	}
	return records, nil
}

// GetCharacter fetches one of an owner's characters.
func (s *Store) GetCharacter(ctx context.Context, ownerID, characterID string) (storage.CharacterRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return storage.CharacterRecord{}, err
	}
	var model characterModel
	if err := db.Where("owner_id = ? AND id = ?", strings.TrimSpace(ownerID), strings.TrimSpace(characterID)).Take(&model).Error; err != nil {
		return storage.CharacterRecord{}, notFoundOr(err, "get character")
	}
	return characterFromModel(model), nil
}

// PutCharacter upserts a character. Rows owned by another user report
// ErrNotFound.
func (s *Store) PutCharacter(ctx context.Context, record storage.CharacterRecord) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	record.OwnerID = strings.TrimSpace(record.OwnerID)
	if record.ID == "" || record.OwnerID == "" {
		return fmt.Errorf("character id and owner id are required")
	}
	if len(record.Sheet) == 0 {
		return fmt.Errorf("character sheet is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var existing characterModel
		err := tx.Where("id = ?", record.ID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			model := characterModel{
				ID:        record.ID,
				OwnerID:   record.OwnerID,
				Name:      record.Name,
				SheetJSON: []byte(record.Sheet),
				CreatedAt: utc(record.CreatedAt),
				UpdatedAt: utc(record.UpdatedAt),
			}
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("insert character: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("load character: %w", err)
		case existing.OwnerID != record.OwnerID:
			return storage.ErrNotFound
		}
		err = tx.Model(&characterModel{}).Where("id = ?", record.ID).Updates(map[string]any{
			"name":       record.Name,
			"sheet_json": []byte(record.Sheet),
			"updated_at": utc(record.UpdatedAt),
		}).Error
		if err != nil {
			return fmt.Errorf("update character: %w", err)
		}
		return nil
	})
}

// DeleteCharacter removes one of an owner's characters.
func (s *Store) DeleteCharacter(ctx context.Context, ownerID, characterID string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	result := db.Where("owner_id = ? AND id = ?", strings.TrimSpace(ownerID), strings.TrimSpace(characterID)).Delete(&characterModel{})
	if result.Error != nil {
		return fmt.Errorf("delete character: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteCharactersUpdatedBefore removes characters untouched since cutoff.
func (s *Store) DeleteCharactersUpdatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	result := db.Where("updated_at < ?", utc(cutoff)).Delete(&characterModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete inactive characters: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func characterFromModel(model characterModel) storage.CharacterRecord {
	return storage.CharacterRecord{
		ID:        model.ID,
		OwnerID:   model.OwnerID,
		Name:      model.Name,
		Sheet:     json.RawMessage(model.SheetJSON),
		CreatedAt: utc(model.CreatedAt),
		UpdatedAt: utc(model.UpdatedAt),
	}
}

// CreateCampaign inserts the campaign and its GM membership atomically.
func (s *Store) CreateCampaign(ctx context.Context, c campaign.Campaign, gm campaign.Member) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.GMID) == "" || strings.TrimSpace(c.InviteCode) == "" {
		return fmt.Errorf("campaign id, gm id and invite code are required")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		model := campaignToModel(c)
		if err := tx.Create(&model).Error; err != nil {
			if isDuplicate(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert campaign: %w", err)
		}
		return putMember(tx, gm)
	})
}

// GetCampaign fetches a campaign by id.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (campaign.Campaign, error) {
	return s.getCampaign(ctx, "id = ?", strings.TrimSpace(campaignID))
}

// GetCampaignByInviteCode fetches a campaign by its invite code.
func (s *Store) GetCampaignByInviteCode(ctx context.Context, code string) (campaign.Campaign, error) {
	return s.getCampaign(ctx, "invite_code = ?", strings.ToUpper(strings.TrimSpace(code)))
}

func (s *Store) getCampaign(ctx context.Context, where, value string) (campaign.Campaign, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return campaign.Campaign{}, err
	}
	var model campaignModel
	if err := db.Where(where, value).Take(&model).Error; err != nil {
		return campaign.Campaign{}, notFoundOr(err, "get campaign")
	}
	return campaignFromModel(model), nil
}

type campaignSummaryRow struct {
	ID           string    `gorm:"column:id"`
	GMID         string    `gorm:"column:gm_id"`
	Name         string    `gorm:"column:name"`
	InviteCode   string    `gorm:"column:invite_code"`
	SettingsJSON []byte    `gorm:"column:settings_json"`
	Notes        string    `gorm:"column:notes"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
	Role         string    `gorm:"column:role"`
	Status       string    `gorm:"column:status"`
}

func (r campaignSummaryRow) model() campaignModel {
	return campaignModel{
		ID:           r.ID,
		GMID:         r.GMID,
		Name:         r.Name,
		InviteCode:   r.InviteCode,
		SettingsJSON: r.SettingsJSON,
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ListCampaignsForUser lists campaigns the user belongs to.
func (s *Store) ListCampaignsForUser(ctx context.Context, userID string) ([]storage.CampaignSummary, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []campaignSummaryRow
	err = db.Table("campaigns AS c").
		Select("c.id, c.gm_id, c.name, c.invite_code, c.settings_json, c.notes, c.created_at, c.updated_at, m.role, m.status").
		Joins("JOIN campaign_members AS m ON m.campaign_id = c.id").
		Where("m.user_id = ?", strings.TrimSpace(userID)).
		Order("c.updated_at DESC, c.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	summaries := make([]storage.CampaignSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, storage.CampaignSummary{
			Campaign: campaignFromModel(row.model()),
			Role:     campaign.Role(row.Role),
			Status:   campaign.Status(row.Status),
		})
	}
	return summaries, nil
}

// UpdateCampaign writes name, settings and notes.
func (s *Store) UpdateCampaign(ctx context.Context, c campaign.Campaign) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	result := db.Model(&campaignModel{}).Where("id = ?", strings.TrimSpace(c.ID)).Updates(map[string]any{
		"name":          c.Name,
		"settings_json": []byte(c.Settings),
		"notes":         c.Notes,
		"updated_at":    utc(c.UpdatedAt),
	})
	if result.Error != nil {
		return fmt.Errorf("update campaign: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteCampaign removes a campaign and every row scoped to it in one transaction.
func (s *Store) DeleteCampaign(ctx context.Context, campaignID string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return fmt.Errorf("campaign id is required")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&diceLogModel{}, &chatLogModel{}, &memberModel{}} {
			if err := tx.Where("campaign_id = ?", campaignID).Delete(model).Error; err != nil {
				return fmt.Errorf("delete campaign rows: %w", err)
			}
		}
		result := tx.Where("id = ?", campaignID).Delete(&campaignModel{})
		if result.Error != nil {
			return fmt.Errorf("delete campaign: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func campaignToModel(c campaign.Campaign) campaignModel {
	return campaignModel{
		ID:           c.ID,
		GMID:         c.GMID,
		Name:         c.Name,
		InviteCode:   c.InviteCode,
		SettingsJSON: []byte(c.Settings),
		Notes:        c.Notes,
		CreatedAt:    utc(c.CreatedAt),
		UpdatedAt:    utc(c.UpdatedAt),
	}
}

func campaignFromModel(model campaignModel) campaign.Campaign {
	return campaign.Campaign{
		ID:         model.ID,
		GMID:       model.GMID,
		Name:       model.Name,
		InviteCode: model.InviteCode,
		Settings:   json.RawMessage(model.SettingsJSON),
		Notes:      model.Notes,
		CreatedAt:  utc(model.CreatedAt),
		UpdatedAt:  utc(model.UpdatedAt),
	}
}

// GetMember fetches one membership row.
func (s *Store) GetMember(ctx context.Context, campaignID, userID string) (campaign.Member, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return campaign.Member{}, err
	}
	var model memberModel
	if err := db.Where("campaign_id = ? AND user_id = ?", strings.TrimSpace(campaignID), strings.TrimSpace(userID)).Take(&model).Error; err != nil {
		return campaign.Member{}, notFoundOr(err, "get member")
	}
	return memberFromModel(model), nil
}

// ListMembers lists a campaign's members in join order.
func (s *Store) ListMembers(ctx context.Context, campaignID string) ([]campaign.Member, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var models []memberModel
	if err := db.Where("campaign_id = ?", strings.TrimSpace(campaignID)).Order("joined_at, user_id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members := make([]campaign.Member, 0, len(models))
	for _, model := range models {
		members = append(members, memberFromModel(model))
	}
	return members, nil
}

// PutMember upserts a membership row.
func (s *Store) PutMember(ctx context.Context, m campaign.Member) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return putMember(db, m)
}

func putMember(db *gorm.DB, m campaign.Member) error {
	if strings.TrimSpace(m.CampaignID) == "" || strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("campaign id and user id are required")
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = m.UpdatedAt
	}
	model := memberModel{
		CampaignID:  strings.TrimSpace(m.CampaignID),
		UserID:      strings.TrimSpace(m.UserID),
		Username:    m.Username,
		Role:        string(m.Role),
		Status:      string(m.Status),
		CharacterID: m.CharacterID,
		CharData:    []byte(m.CharData),
		JoinedAt:    utc(m.JoinedAt),
		UpdatedAt:   utc(m.UpdatedAt),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "role", "status", "character_id", "char_data", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("put member: %w", err)
	}
	return nil
}

// AddMember inserts m after checking the player cap in one transaction. The
// campaign row is locked first so concurrent joins serialize on it.
func (s *Store) AddMember(ctx context.Context, m campaign.Member, maxPlayers int) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var locked campaignModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", strings.TrimSpace(m.CampaignID)).
			Take(&locked).Error
		if err != nil {
			return notFoundOr(err, "lock campaign")
		}
		if maxPlayers > 0 {
			n, err := countActivePlayers(tx, m.CampaignID)
			if err != nil {
				return err
			}
			if n >= maxPlayers {
				return campaign.ErrCampaignFull
			}
		}
		return putMember(tx, m)
	})
}

// CountActivePlayers counts active non-GM members.
func (s *Store) CountActivePlayers(ctx context.Context, campaignID string) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	return countActivePlayers(db, campaignID)
}

func countActivePlayers(db *gorm.DB, campaignID string) (int, error) {
	var n int64
	err := db.Model(&memberModel{}).
		Where("campaign_id = ? AND role = ? AND status = ?", strings.TrimSpace(campaignID), string(campaign.RolePlayer), string(campaign.StatusActive)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count active players: %w", err)
	}
	return int(n), nil
}

// DeleteKickedMembersBefore removes kicked rows not updated since cutoff.
func (s *Store) DeleteKickedMembersBefore(ctx context.Context, cutoff time.Time) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	result := db.Where("status = ? AND updated_at < ?", string(campaign.StatusKicked), utc(cutoff)).Delete(&memberModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete kicked members: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func memberFromModel(model memberModel) campaign.Member {
	m := campaign.Member{
		CampaignID:  model.CampaignID,
		UserID:      model.UserID,
		Username:    model.Username,
		Role:        campaign.Role(model.Role),
		Status:      campaign.Status(model.Status),
		CharacterID: model.CharacterID,
		JoinedAt:    utc(model.JoinedAt),
		UpdatedAt:   utc(model.UpdatedAt),
	}
	if len(model.CharData) > 0 {
		m.CharData = json.RawMessage(model.CharData)
	}
	return m
}

// AppendDiceRoll inserts a dice log row.
func (s *Store) AppendDiceRoll(ctx context.Context, roll storage.DiceRoll) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(roll.ID) == "" || strings.TrimSpace(roll.CampaignID) == "" {
		return fmt.Errorf("roll id and campaign id are required")
	}
	if roll.CreatedAt.IsZero() {
		roll.CreatedAt = time.Now()
	}
	diceJSON, err := json.Marshal(roll.Dice)
	if err != nil {
		return fmt.Errorf("encode dice: %w", err)
	}
	model := diceLogModel{
		ID:         roll.ID,
		CampaignID: roll.CampaignID,
		UserID:     roll.UserID,
		SenderName: roll.SenderName,
		Formula:    roll.Formula,
		DiceJSON:   string(diceJSON),
		Natural:    roll.Natural,
		Modifier:   roll.Modifier,
		Total:      roll.Total,
		CreatedAt:  utc(roll.CreatedAt),
	}
	if err := db.Create(&model).Error; err != nil {
		if isDuplicate(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("append dice roll: %w", err)
	}
	return nil
}

// ListDiceRolls returns the most recent rolls, oldest first.
func (s *Store) ListDiceRolls(ctx context.Context, campaignID string, limit int) ([]storage.DiceRoll, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	var models []diceLogModel
	err = db.Where("campaign_id = ?", strings.TrimSpace(campaignID)).
		Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list dice rolls: %w", err)
	}
	slices.Reverse(models)
	rolls := make([]storage.DiceRoll, 0, len(models))
	for _, model := range models {
		roll := storage.DiceRoll{
			ID:         model.ID,
			CampaignID: model.CampaignID,
			UserID:     model.UserID,
			SenderName: model.SenderName,
			Formula:    model.Formula,
			Natural:    model.Natural,
			Modifier:   model.Modifier,
			Total:      model.Total,
			CreatedAt:  utc(model.CreatedAt),
		}
		if err := json.Unmarshal([]byte(model.DiceJSON), &roll.Dice); err != nil {
			return nil, fmt.Errorf("decode dice: %w", err)
		}
		rolls = append(rolls, roll)
	}
	return rolls, nil
}

// AppendChatMessage inserts a chat log row.
func (s *Store) AppendChatMessage(ctx context.Context, msg storage.ChatMessage) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(msg.ID) == "" || strings.TrimSpace(msg.CampaignID) == "" {
		return fmt.Errorf("message id and campaign id are required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	model := chatLogModel{
		ID:         msg.ID,
		CampaignID: msg.CampaignID,
		UserID:     msg.UserID,
		SenderName: msg.SenderName,
		Body:       msg.Body,
		CreatedAt:  utc(msg.CreatedAt),
	}
	if err := db.Create(&model).Error; err != nil {
		if isDuplicate(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns the most recent messages, oldest first.
func (s *Store) ListChatMessages(ctx context.Context, campaignID string, limit int) ([]storage.ChatMessage, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	var models []chatLogModel
	err = db.Where("campaign_id = ?", strings.TrimSpace(campaignID)).
		Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	slices.Reverse(models)
	messages := make([]storage.ChatMessage, 0, len(models))
	for _, model := range models {
		messages = append(messages, storage.ChatMessage{
			ID:         model.ID,
			CampaignID: model.CampaignID,
			UserID:     model.UserID,
			SenderName: model.SenderName,
			Body:       model.Body,
			CreatedAt:  utc(model.CreatedAt),
		})
	}
	return messages, nil
}

var _ storage.Store = (*Store)(nil)
