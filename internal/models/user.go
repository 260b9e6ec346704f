package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Avatar       string    `json:"avatar"` // bare filename, empty when none
	DateCreated  time.Time `json:"date_created"`
	DateUpdated  time.Time `json:"date_updated"`
}

// NewUser stamps both timestamps with now.
func NewUser(now time.Time) User {
	return User{DateCreated: now, DateUpdated: now}
}

// AttachAvatar records a newly stored avatar file. DateUpdated always moves,
// even when the filename is unchanged, so the write is never a no-op.
func (u *User) AttachAvatar(filename string, now time.Time) {
	u.Avatar = filename
	u.DateUpdated = now
}

// AvatarURL returns the avatar path as shown to clients.
func (u User) AvatarURL(prefix string) string {
	if u.Avatar == "" {
		return ""
	}
	return prefix + u.Avatar
}
