package model

import "time"

type User struct {
	ID           string    `gorm:"primaryKey;size:36" bson:"_id" json:"_id"`
	Name         string    `gorm:"size:128;not null" bson:"name" json:"name"`
	Email        string    `gorm:"size:191;not null;uniqueIndex" bson:"email" json:"email"`
	PasswordHash string    `gorm:"column:password;size:255;not null" bson:"password" json:"-"`
	Deleted      bool      `gorm:"not null;default:false;index" bson:"deleted" json:"deleted"`
	Admin        bool      `gorm:"not null;default:false" bson:"admin" json:"admin"`
	RefreshToken *string   `gorm:"type:text" bson:"refreshToken" json:"-"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

// UserUpdate holds the fields a PATCH may change. Nil means untouched.
type UserUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
	Admin        *bool
}

func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.PasswordHash == nil && u.Admin == nil
}
