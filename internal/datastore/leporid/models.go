// Package leporid maps the Leporid identity and image store. The merge-uc
// target shares this layout.
package leporid

import (
	"time"

	"gorm.io/gorm"
)

// Third-party login strategies recorded in UserThirdParty.Strategy
const (
	StrategyDivingFish = 1
	StrategyLXNS       = 2
)

// User is a Leporid account.
type User struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	Username    string    `gorm:"type:varchar(191);not null;uniqueIndex"`
	Password    string    `gorm:"type:varchar(255);not null"`
	Email       string    `gorm:"type:varchar(255);not null"`
	Permissions string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM.
func (User) TableName() string {
	return "tbl_user"
}

// UserThirdParty binds an external identity (account name on a game server) to a User.
type UserThirdParty struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `gorm:"type:varchar(36);not null;index"`
	Username  string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_third_party_identity,priority:1"`
	Strategy  int       `gorm:"not null;uniqueIndex:idx_third_party_identity,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM.
func (UserThirdParty) TableName() string {
	return "tbl_user_third_party"
}

// ImageAspect describes the aspect ratio images of a kind are rendered at.
type ImageAspect struct {
	ID              string `gorm:"primaryKey;type:varchar(32)"`
	Name            string `gorm:"type:varchar(255);not null"`
	Description     string `gorm:"type:varchar(255);not null"`
	RatioWidthUnit  int    `gorm:"not null"`
	RatioHeightUnit int    `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (ImageAspect) TableName() string {
	return "tbl_image_aspect"
}

// Visibility values of Image
const (
	VisibilityPrivate = 0
	VisibilityPublic  = 1
)

// Image is a Leporid image. The binary lives outside the database as <ID>.webp.
type Image struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)"`
	UserID       string    `gorm:"type:varchar(36);not null;index"`
	AspectID     string    `gorm:"type:varchar(32);not null"`
	Name         string    `gorm:"type:varchar(255);not null"`
	Description  string    `gorm:"type:varchar(255);not null"`
	Visibility   int       `gorm:"not null"`
	Labels       []string  `gorm:"type:text;serializer:json"`
	FileName     *string   `gorm:"type:varchar(255);index"`
	OriginalName *string   `gorm:"type:varchar(255)"`
	OriginalID   *string   `gorm:"type:varchar(64)"`
	MetadataID   *string   `gorm:"type:varchar(64)"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM.
func (Image) TableName() string {
	return "tbl_image"
}

// Models lists every Leporid model in dependency order
func Models() []any {
	return []any{&User{}, &UserThirdParty{}, &ImageAspect{}, &Image{}}
}

// AutoMigrate creates or extends the Leporid tables. Production stores are
// provisioned by Leporid itself; this serves staging and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
