package legacy

import "time"

// UCUser is a user of the legacy UC workshop.
type UCUser struct {
	ID             int64      `gorm:"primaryKey;autoIncrement:false"`
	Username       string     `gorm:"type:varchar(191);not null"`
	HashedPassword *string    `gorm:"type:varchar(255)"`
	Email          *string    `gorm:"type:varchar(255)"`
	CreatedAt      *time.Time `gorm:"autoCreateTime:false"`
}

// TableName returns the table name for GORM.
func (UCUser) TableName() string {
	return "users"
}

// UCImage is an image uploaded to the legacy UC workshop.
// UploadedBy references UCUser.ID; NULL means a system image.
type UCImage struct {
	UUID       string     `gorm:"column:uuid;primaryKey;type:varchar(64)"`
	Kind       string     `gorm:"type:varchar(32);not null"`
	Label      *string    `gorm:"type:varchar(255)"`
	FileName   *string    `gorm:"type:varchar(255)"`
	UploadedBy *int64     `gorm:"index"`
	UploadedAt *time.Time
	Category   *string `gorm:"type:varchar(64)"`
	TraceID    *string `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM.
func (UCImage) TableName() string {
	return "images"
}

// UCModels lists the UC source models, for fixtures and staging setups
func UCModels() []any {
	return []any{&UCUser{}, &UCImage{}}
}
