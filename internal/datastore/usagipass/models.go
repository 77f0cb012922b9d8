// Package usagipass maps the Usagipass card store.
package usagipass

import (
	"time"

	"gorm.io/gorm"
)

// Server identifiers that must exist in tbl_server
const (
	ServerDivingFish = "DIVING_FISH"
	ServerLXNS       = "LXNS"
)

// Server is a score-tracking server an Account belongs to.
type Server struct {
	ID         int64  `gorm:"primaryKey"`
	Identifier string `gorm:"type:varchar(32);not null;uniqueIndex"`
}

// TableName returns the table name for GORM.
func (Server) TableName() string {
	return "tbl_server"
}

// Account holds the credentials of one user on one server.
type Account struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	UserID      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_account_user_server,priority:1"`
	ServerID    int64     `gorm:"not null;uniqueIndex:idx_account_user_server,priority:2"`
	Credentials string    `gorm:"type:text;not null"`
	Enabled     bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM.
func (Account) TableName() string {
	return "tbl_account"
}

// Credentials is the JSON document stored in Account.Credentials
type Credentials struct {
	AccountName     string `json:"accountName"`
	AccountPassword string `json:"accountPassword"`
}

// Rating caches the player rating shown on the card.
type Rating struct {
	UserID     string    `gorm:"primaryKey;type:varchar(36)"`
	Name       string    `gorm:"type:varchar(255);not null"`
	Rating     int64     `gorm:"not null"`
	FriendCode string    `gorm:"type:varchar(64);not null"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM.
func (Rating) TableName() string {
	return "tbl_rating"
}

// Preference holds the card rendering options of a user.
type Preference struct {
	UserID          string `gorm:"primaryKey;type:varchar(36)"`
	MaimaiVersion   string `gorm:"type:varchar(64);not null"`
	SimplifiedCode  string `gorm:"type:varchar(64);not null"`
	CharacterName   string `gorm:"type:varchar(255);not null"`
	FriendCode      string `gorm:"type:varchar(64);not null"`
	DisplayName     string `gorm:"type:varchar(255);not null"`
	DxRating        string `gorm:"type:varchar(64);not null"`
	QRSize          int    `gorm:"column:qr_size;not null"`
	MaskType        int    `gorm:"not null"`
	PlayerInfoColor string `gorm:"type:varchar(16);not null"`
	CharaInfoColor  string `gorm:"type:varchar(16);not null"`
	ShowDxRating    bool   `gorm:"not null"`
	ShowDisplayName bool   `gorm:"not null"`
	ShowFriendCode  bool   `gorm:"not null"`
	ShowDate        bool   `gorm:"not null"`
	CharacterID     string `gorm:"type:varchar(64);not null"`
	MaskID          string `gorm:"type:varchar(64);not null"`
	BackgroundID    string `gorm:"type:varchar(64);not null"`
	FrameID         string `gorm:"type:varchar(64);not null"`
	PassnameID      string `gorm:"type:varchar(64);not null"`
}

// TableName returns the table name for GORM.
func (Preference) TableName() string {
	return "tbl_preference"
}

// LegacyImage is the pre-migration image catalogue still held by Usagipass.
// Preferences reference its ids until they are remapped.
type LegacyImage struct {
	ID       string  `gorm:"primaryKey;type:varchar(64)"`
	SegaName *string `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM.
func (LegacyImage) TableName() string {
	return "images"
}

// Models lists every Usagipass model
func Models() []any {
	return []any{&Server{}, &Account{}, &Rating{}, &Preference{}, &LegacyImage{}}
}

// AutoMigrate creates or extends the Usagipass tables for staging and tests
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
