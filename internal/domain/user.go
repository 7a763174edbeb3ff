package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null;column:email" json:"email"`
	Name         string    `gorm:"size:100;not null;column:name" json:"name"`
	Password     string    `gorm:"size:255;not null;column:password" json:"-"`
	ProfileImage string    `gorm:"column:profile_image" json:"profile_image,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// BeforeCreate assigns the id in the application so inserts behave the
// same across drivers.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// PublicUser is the wire shape for user payloads; it never carries the
// password hash.
type PublicUser struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	ProfileImage string    `json:"profile_image,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		ProfileImage: u.ProfileImage,
	}
}
