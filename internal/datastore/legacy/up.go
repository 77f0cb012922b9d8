package legacy

import "time"

// User is a user of the legacy UP card service.
type User struct {
	Username     string     `gorm:"primaryKey;type:varchar(191)"`
	PreferServer *string    `gorm:"type:varchar(32)"`
	CreatedAt    *time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    *time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM.
func (User) TableName() string {
	return "users"
}

// Account is a game-server account bound to a UP user, one per server.
type Account struct {
	Username        string     `gorm:"primaryKey;type:varchar(191)"`
	AccountServer   string     `gorm:"primaryKey;type:varchar(32)"`
	AccountName     string     `gorm:"type:varchar(191);not null"`
	AccountPassword *string    `gorm:"type:varchar(255)"`
	Nickname        *string    `gorm:"type:varchar(255)"`
	BindQQ          *string    `gorm:"column:bind_qq;type:varchar(64)"`
	PlayerRating    *int64     // NULL when never synced
	CreatedAt       *time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt       *time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM.
func (Account) TableName() string {
	return "user_accounts"
}

// Preference holds the card rendering options of a UP user.
type Preference struct {
	Username       string  `gorm:"primaryKey;type:varchar(191)"`
	MaimaiVersion  *string `gorm:"type:varchar(64)"`
	SimplifiedCode *string `gorm:"type:varchar(64)"`
	CharacterName  *string `gorm:"type:varchar(255)"`
	FriendCode     *string `gorm:"type:varchar(64)"`
	DisplayName    *string `gorm:"type:varchar(255)"`
	DxRating       *string `gorm:"type:varchar(64)"`
	QRSize         *int    `gorm:"column:qr_size"`
	MaskType       *int
	CharacterID    *string `gorm:"type:varchar(64)"`
	BackgroundID   *string `gorm:"type:varchar(64)"`
	FrameID        *string `gorm:"type:varchar(64)"`
	PassnameID     *string `gorm:"type:varchar(64)"`
	CharaInfoColor *string `gorm:"type:varchar(16)"`
	ShowDate       *bool
}

// TableName returns the table name for GORM.
func (Preference) TableName() string {
	return "user_preferences"
}

// Image is an image uploaded to the UP card service.
// UploadedBy references User.Username.
type Image struct {
	ID         string  `gorm:"primaryKey;type:varchar(64)"`
	Name       *string `gorm:"type:varchar(255)"`
	Kind       string  `gorm:"type:varchar(32);not null"`
	SegaName   *string `gorm:"type:varchar(255)"`
	UploadedBy *string `gorm:"type:varchar(191);index"`
	UploadedAt *time.Time
}

// TableName returns the table name for GORM.
func (Image) TableName() string {
	return "images"
}

// UPModels lists the UP source models, for fixtures and staging setups
func UPModels() []any {
	return []any{&User{}, &Account{}, &Preference{}, &Image{}}
}
