package model

import (
	"strings"
	"time"
)

const UserTableName = "users"

// User 表示系统中的用户。Password holds the bcrypt hash and is never serialized to clients.
type User struct {
	ID         string    `bson:"_id" json:"_id"`
	Email      string    `bson:"email" json:"email"`
	FullName   string    `bson:"fullName" json:"fullName"`
	ProfilePic string    `bson:"profilePic" json:"profilePic"`
	Bio        string    `bson:"bio" json:"bio"`
	Password   string    `bson:"password" json:"-"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) GetTableName() string { return UserTableName }

func (u *User) GetUserID() string { return u.ID }

func (u *User) GetNickname() string { return u.FullName }

func (u *User) GetFaceURL() string { return u.ProfilePic }

// Matches is the sidebar search: case-insensitive substring of name or email.
func (u *User) Matches(search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.FullName), search) ||
		strings.Contains(strings.ToLower(u.Email), search)
}

// Safe returns a copy without the password hash.
func (u *User) Safe() *User {
	c := *u
	c.Password = ""
	return &c
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ProfilePatch carries the optional fields of an update-profile request.
type ProfilePatch struct {
	FullName   *string
	Bio        *string
	ProfilePic *string // already an asset reference
}
