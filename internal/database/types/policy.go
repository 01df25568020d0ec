package types

import (
	"time"
)

// WatchedGroup is a group a guild wants highlighted whenever a subject belongs to it.
type WatchedGroup struct {
	GuildID uint64    `bun:",pk"      json:"guildId"`
	GroupID uint64    `bun:",pk"      json:"groupId"`
	Label   string    `bun:",notnull" json:"label,omitempty"`
	AddedBy uint64    `bun:",notnull" json:"addedBy"` // Discord ID of the staff member
	AddedAt time.Time `bun:",notnull" json:"addedAt"`
}

// RankBlacklist forbids holding a specific rank in a group.
type RankBlacklist struct {
	GuildID   uint64    `bun:",pk"      json:"guildId"`
	GroupID   uint64    `bun:",pk"      json:"groupId"`
	Rank      uint8     `bun:",pk"      json:"rank"`
	Reason    string    `bun:",notnull" json:"reason"`
	CreatedBy uint64    `bun:",notnull" json:"createdBy"`
	CreatedAt time.Time `bun:",notnull" json:"createdAt"`
}

// SubjectBlacklist marks a Roblox account as blacklisted by a guild.
type SubjectBlacklist struct {
	GuildID      uint64    `bun:",pk"      json:"guildId"`
	RobloxUserID uint64    `bun:",pk"      json:"robloxUserId"`
	Reason       string    `bun:",notnull" json:"reason"`
	CreatedBy    uint64    `bun:",notnull" json:"createdBy"`
	CreatedAt    time.Time `bun:",notnull" json:"createdAt"`
}

// RankLock caps the rank a specific subject may hold in a group.
type RankLock struct {
	GuildID      uint64    `bun:",pk"      json:"guildId"`
	RobloxUserID uint64    `bun:",pk"      json:"robloxUserId"`
	GroupID      uint64    `bun:",pk"      json:"groupId"`
	MaxRank      uint8     `bun:",notnull" json:"maxRank"`
	Reason       string    `bun:",notnull" json:"reason"`
	SetBy        uint64    `bun:",notnull" json:"setBy"`
	SetAt        time.Time `bun:",notnull" json:"setAt"`
}

// RankKey identifies a rank within a group.
type RankKey struct {
	GroupID uint64
	Rank    uint8
}

// RuleSet holds every rule of one guild that applies to one subject.
type RuleSet struct {
	Watched       map[uint64]*WatchedGroup   // Keyed by group ID
	RankBlacklist map[RankKey]*RankBlacklist // Keyed by group and rank
	RankLocks     map[uint64]*RankLock       // Keyed by group ID, already scoped to the subject
	Subject       *SubjectBlacklist          // Nil when the subject is not blacklisted
}

// NewRuleSet creates an empty RuleSet.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		Watched:       make(map[uint64]*WatchedGroup),
		RankBlacklist: make(map[RankKey]*RankBlacklist),
		RankLocks:     make(map[uint64]*RankLock),
	}
}

// NewRuleSetFrom indexes the given rule lists into a RuleSet.
func NewRuleSetFrom(
	watched []*WatchedGroup, blacklist []*RankBlacklist, locks []*RankLock, subject *SubjectBlacklist,
) *RuleSet {
	rules := NewRuleSet()
	for _, w := range watched {
		rules.Watched[w.GroupID] = w
	}

	for _, b := range blacklist {
		rules.RankBlacklist[RankKey{GroupID: b.GroupID, Rank: b.Rank}] = b
	}

	for _, l := range locks {
		rules.RankLocks[l.GroupID] = l
	}

	rules.Subject = subject

	return rules
}

// IsEmpty reports whether the set contains no rules.
func (r *RuleSet) IsEmpty() bool {
	return r == nil || (len(r.Watched) == 0 && len(r.RankBlacklist) == 0 && len(r.RankLocks) == 0 && r.Subject == nil)
}
