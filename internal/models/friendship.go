package models

import "time"

// Friendship represents a confirmed relationship between two users.
// To avoid duplicates and simplify queries, UserID1 is always the
// lexicographically smaller id and PairID is the canonical pair key.
type Friendship struct {
	PairID    string    `gorm:"type:varchar(130);primaryKey" json:"pairId"`
	UserID1   string    `gorm:"type:varchar(64);not null;index" json:"userId1"`
	UserID2   string    `gorm:"type:varchar(64);not null;index" json:"userId2"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewFriendship builds a friendship in canonical order for the given pair.
func NewFriendship(a, b string) *Friendship {
	u1, u2 := SortPair(a, b)
	return &Friendship{
		PairID:  CanonicalPair(a, b),
		UserID1: u1,
		UserID2: u2,
	}
}

// HasMember reports whether userID is one of the two members.
func (f *Friendship) HasMember(userID string) bool {
	return f.UserID1 == userID || f.UserID2 == userID
}

// OtherMember returns the counterpart of userID, or "" if userID is not a member.
func (f *Friendship) OtherMember(userID string) string {
	switch userID {
	case f.UserID1:
		return f.UserID2
	case f.UserID2:
		return f.UserID1
	}
	return ""
}

// FriendEntry is a DTO pairing a friendship with basic info about the
// counterpart, as seen from one member's side.
type FriendEntry struct {
	PairID    string         `json:"pairId"`
	Friend    *UserBasicInfo `json:"friend"`
	CreatedAt time.Time      `json:"createdAt"`
}
