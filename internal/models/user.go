package models

import (
	"time"
)

type UserStatus string

const (
	StatusIdle      UserStatus = "idle"
	StatusSearching UserStatus = "searching"
	StatusChatting  UserStatus = "chatting"
)

const (
	GenderAny    = "any"
	GenderMale   = "male"
	GenderFemale = "female"
)

const (
	DefaultAgeMin = 18
	DefaultAgeMax = 99
)

// Profile fields that can be pending a free-text answer.
const (
	InputNone   = ""
	InputGender = "gender"
	InputAge    = "age"
)

// User is one anonymous chat participant. PartnerID is a weak back-reference;
// status == chatting iff the partner row points back at this one.
type User struct {
	ID            string     `gorm:"primaryKey;size:64" json:"id"`
	Status        UserStatus `gorm:"size:20;not null;default:'idle';index" json:"status"`
	PartnerID     *string    `gorm:"size:64;index" json:"partner_id,omitempty"`
	AwaitingInput string     `gorm:"size:20;not null;default:''" json:"awaiting_input,omitempty"`

	Gender string `gorm:"size:10;not null;default:''" json:"gender,omitempty"`
	Age    *int   `json:"age,omitempty"`

	IsPremium    bool       `gorm:"not null;default:false" json:"is_premium"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`

	GenderFilter string `gorm:"size:10;not null;default:'any'" json:"gender_filter"`
	AgeMin       int    `gorm:"not null;default:18" json:"age_min"`
	AgeMax       int    `gorm:"not null;default:99" json:"age_max"`

	TotalChats      int `gorm:"not null;default:0" json:"total_chats"`
	TotalMessages   int `gorm:"not null;default:0" json:"total_messages"`
	NextUsedToday   int `gorm:"not null;default:0" json:"next_used_today"`
	ReportsReceived int `gorm:"not null;default:0" json:"reports_received"`

	IsBanned bool `gorm:"not null;default:false;index" json:"is_banned"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// PremiumActive reports whether premium benefits apply at now.
func (u *User) PremiumActive(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	return u.PremiumUntil == nil || now.Before(*u.PremiumUntil)
}

// Partner returns the partner id or "" when unpaired.
func (u *User) Partner() string {
	if u.PartnerID == nil {
		return ""
	}
	return *u.PartnerID
}
