package types

import (
	"time"
)

// Subject is the Roblox account a background check is run against.
type Subject struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	IsBanned    bool      `json:"isBanned"` // Account terminated by Roblox
}

// AccountAgeDays returns the number of whole days between account creation and now.
// A zero creation time yields -1.
func (s *Subject) AccountAgeDays(now time.Time) int {
	if s.CreatedAt.IsZero() {
		return -1
	}

	days := int(now.Sub(s.CreatedAt).Hours() / 24)
	if days < 0 {
		return 0
	}

	return days
}

// Membership is a subject's role in one Roblox group.
type Membership struct {
	GroupID   uint64 `json:"groupId"`
	GroupName string `json:"groupName"`
	RoleID    uint64 `json:"roleId"`
	Rank      uint8  `json:"rank"` // Role ordinal, higher means more authority
	RoleName  string `json:"roleName"`
}
