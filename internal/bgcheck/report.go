package bgcheck

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/robalyx/bgcheck/internal/identity"
	"github.com/robalyx/bgcheck/internal/roblox/checker"
	"github.com/robalyx/bgcheck/internal/valuation"
)

// NewAccountDays is the account age below which a subject is noted as new.
const NewAccountDays = 30

// NoteCode identifies a degraded or noteworthy condition in a report.
type NoteCode string

const (
	NotePolicyStoreDisabled NoteCode = "policy_store_disabled"
	NotePolicyStoreError    NoteCode = "policy_store_error"
	NoteNewAccount          NoteCode = "new_account"
	NoteSubjectBanned       NoteCode = "subject_banned"
	NoteSubjectBlacklisted  NoteCode = "subject_blacklisted"
	NoteInventoryBlocked    NoteCode = "inventory_blocked"
	NotePricingUnavailable  NoteCode = "pricing_unavailable"
	NotePricingRateLimited  NoteCode = "pricing_rate_limited"
)

// Note is a human-readable remark attached to a report.
type Note struct {
	Code    NoteCode `json:"code"`
	Message string   `json:"message"`
}

// Report is the result of a background check.
type Report struct {
	RunID            uuid.UUID                   `json:"runId"`
	GuildID          snowflake.ID                `json:"guildId"`
	Source           identity.Source             `json:"source"`
	Subject          types.Subject               `json:"subject"`
	AccountAgeDays   int                         `json:"accountAgeDays"`
	Memberships      []checker.FlaggedMembership `json:"memberships"`
	Counts           checker.Counts              `json:"counts"`
	SubjectBlacklist *types.SubjectBlacklist     `json:"subjectBlacklist,omitempty"`
	Notes            []Note                      `json:"notes"`
	Valuation        *valuation.Estimate         `json:"valuation,omitempty"`
	GeneratedAt      time.Time                   `json:"generatedAt"`
}

// HasNote reports whether the report carries a note with the code.
func (r *Report) HasNote(code NoteCode) bool {
	for _, note := range r.Notes {
		if note.Code == code {
			return true
		}
	}
	return false
}
