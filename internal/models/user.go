package models

import (
	"fmt"
	"time"
)

type User struct {
	UserID    int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Username  string
	FirstName string

	InvitedCount     int    `gorm:"not null;default:0"`
	ChannelsFollowed bool   `gorm:"not null;default:false"`
	ReferrerID       *int64 `gorm:"index"`
	Unlocked         bool   `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (u *User) String() string {
	referrer := "none"
	if u.ReferrerID != nil {
		referrer = fmt.Sprintf("%d", *u.ReferrerID)
	}
	return fmt.Sprintf(
		"User(%d, %q, invited=%d, followed=%v, referrer=%s, unlocked=%v)",
		u.UserID,
		u.Username,
		u.InvitedCount,
		u.ChannelsFollowed,
		referrer,
		u.Unlocked,
	)
}
