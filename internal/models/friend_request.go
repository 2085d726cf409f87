package models

import "time"

// FriendRequestStatus 定义好友请求的状态
type FriendRequestStatus string

const (
	FriendRequestStatusPending   FriendRequestStatus = "pending"
	FriendRequestStatusAccepted  FriendRequestStatus = "accepted"
	FriendRequestStatusRejected  FriendRequestStatus = "rejected"
	FriendRequestStatusCancelled FriendRequestStatus = "cancelled" // If sender cancels
)

// Resolved reports whether the status is terminal.
func (s FriendRequestStatus) Resolved() bool {
	return s != FriendRequestStatusPending
}

// FriendRequest is one request record for an unordered user pair.
// Direction (from/to) is metadata; identity is the canonical PairID.
// Resolved rows are retained with a terminal status so there is an audit
// trail of past resolutions — the partial unique index below only guards
// pending rows, so history never blocks a fresh request for the same pair.
type FriendRequest struct {
	ID         string              `gorm:"type:varchar(36);primaryKey" json:"id"`
	PairID     string              `gorm:"type:varchar(130);not null;index:idx_friend_requests_active_pair,unique,where:status = 'pending'" json:"pairId"`
	FromUserID string              `gorm:"type:varchar(64);not null;index" json:"fromUserId"`
	ToUserID   string              `gorm:"type:varchar(64);not null;index" json:"toUserId"`
	Status     FriendRequestStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt  time.Time           `json:"createdAt"`
	ResolvedAt *time.Time          `json:"resolvedAt,omitempty"`
}

// ReceivedRequest is a DTO pairing a pending request with basic info about
// the user who sent it. Useful for API responses for listing pending requests.
type ReceivedRequest struct {
	RequestID string         `json:"requestId"`
	FromUser  *UserBasicInfo `json:"fromUser"`
	CreatedAt time.Time      `json:"createdAt"`
}

// SentRequest is the sender-side counterpart of ReceivedRequest.
type SentRequest struct {
	RequestID string         `json:"requestId"`
	ToUser    *UserBasicInfo `json:"toUser"`
	CreatedAt time.Time      `json:"createdAt"`
}
