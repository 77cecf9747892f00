package gormstore

import "time"

type userModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Username     string    `gorm:"uniqueIndex;size:32;not null"`
	PasswordHash string    `gorm:"not null;default:''"`
	Guest        bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (userModel) TableName() string { return "users" }

type profileEntryModel struct {
	UserID    string    `gorm:"primaryKey;size:64"`
	Key       string    `gorm:"primaryKey;size:128"`
	ValueJSON []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (profileEntryModel) TableName() string { return "profile_entries" }

type characterModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	OwnerID   string    `gorm:"index;size:64;not null"`
	Name      string    `gorm:"not null"`
	SheetJSON []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"index;autoUpdateTime:false"`
}

func (characterModel) TableName() string { return "characters" }

type campaignModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	GMID         string    `gorm:"column:gm_id;index;size:64;not null"`
	Name         string    `gorm:"not null"`
	InviteCode   string    `gorm:"uniqueIndex;size:8;not null"`
	SettingsJSON []byte    `gorm:"not null"`
	Notes        string    `gorm:"not null;default:''"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (campaignModel) TableName() string { return "campaigns" }

type memberModel struct {
	CampaignID  string    `gorm:"primaryKey;size:64"`
	UserID      string    `gorm:"primaryKey;size:64;index"`
	Username    string    `gorm:"not null;default:''"`
	Role        string    `gorm:"size:16;not null"`
	Status      string    `gorm:"size:16;not null"`
	CharacterID string    `gorm:"size:64;not null;default:''"`
	CharData    []byte    `gorm:"column:char_data"`
	JoinedAt    time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (memberModel) TableName() string { return "campaign_members" }

type diceLogModel struct {
	ID         string    `gorm:"primaryKey;size:64"`
	CampaignID string    `gorm:"index:idx_dice_logs_campaign,priority:1;size:64;not null"`
	UserID     string    `gorm:"size:64;not null"`
	SenderName string    `gorm:"not null"`
	Formula    string    `gorm:"size:32;not null"`
	DiceJSON   string    `gorm:"not null;default:'[]'"`
	Natural    int       `gorm:"column:natural_roll;not null"`
	Modifier   int       `gorm:"not null"`
	Total      int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index:idx_dice_logs_campaign,priority:2;autoCreateTime:false"`
}

func (diceLogModel) TableName() string { return "dice_logs" }

type chatLogModel struct {
	ID         string    `gorm:"primaryKey;size:64"`
	CampaignID string    `gorm:"index:idx_chat_logs_campaign,priority:1;size:64;not null"`
	UserID     string    `gorm:"size:64;not null"`
	SenderName string    `gorm:"not null"`
	Body       string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index:idx_chat_logs_campaign,priority:2;autoCreateTime:false"`
}

func (chatLogModel) TableName() string { return "chat_logs" }

func allModels() []any {
	return []any{
		&userModel{},
		&profileEntryModel{},
		&characterModel{},
		&campaignModel{},
		&memberModel{},
		&diceLogModel{},
		&chatLogModel{},
	}
}
