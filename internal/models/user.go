package models

import "time"

// User is the local read-only projection of an account on the hosted auth
// platform. The relationship service never creates or mutates these rows;
// they are synced in by the platform (or seeded by the admin tool in dev).
type User struct {
	ID          string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	DisplayName string    `gorm:"type:varchar(100);not null;index" json:"displayName"`
	Email       string    `gorm:"type:varchar(100);index" json:"email,omitempty"`
	PhotoURL    string    `gorm:"type:varchar(255)" json:"photoUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}

// UserBasicInfo holds minimal public information about a user.
// Used for scenarios like displaying the counterpart of a request or
// friendship in API responses.
type UserBasicInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// BasicInfo projects the user onto its public fields.
func (u *User) BasicInfo() *UserBasicInfo {
	return &UserBasicInfo{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
	}
}
