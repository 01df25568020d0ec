package checker

import (
	"slices"
	"strings"

	"github.com/robalyx/bgcheck/internal/database/types"
	"go.uber.org/zap"
)

// Flags is the set of rule matches of one membership.
type Flags uint8

const (
	// FlagWatched marks a membership in a watched group.
	FlagWatched Flags = 1 << iota
	// FlagRankBlacklisted marks a membership holding a blacklisted rank.
	FlagRankBlacklisted
	// FlagRankLockExceeded marks a membership ranked above the subject's rank lock.
	FlagRankLockExceeded
	// FlagRankLocked marks a membership in a group where the subject has a rank lock.
	FlagRankLocked
)

// Has reports whether every flag in f2 is set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// String returns the flag names joined with a comma.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}

	var names []string
	if f.Has(FlagWatched) {
		names = append(names, "watched")
	}
	if f.Has(FlagRankBlacklisted) {
		names = append(names, "rank_blacklisted")
	}
	if f.Has(FlagRankLockExceeded) {
		names = append(names, "ranklock_exceeded")
	}
	if f.Has(FlagRankLocked) {
		names = append(names, "rank_locked")
	}

	return strings.Join(names, ",")
}

// State is the single display state of a membership.
type State int

// States are declared in precedence order, highest first.
const (
	StateBlacklistedRank State = iota
	StateRankLockExceeded
	StateWatched
	StateUnflagged
)

// String returns the display name of the state.
func (s State) String() string {
	switch s {
	case StateBlacklistedRank:
		return "blacklisted-rank"
	case StateRankLockExceeded:
		return "ranklock-exceeded"
	case StateWatched:
		return "watched"
	case StateUnflagged:
		return "unflagged"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by its display name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsFlagged reports whether the state counts towards the flagged total.
func (s State) IsFlagged() bool {
	return s == StateBlacklistedRank || s == StateRankLockExceeded
}

// FlaggedMembership is a membership annotated with the rules it matched.
type FlaggedMembership struct {
	types.Membership

	State     State                `json:"state"`
	Flags     Flags                `json:"flags"`
	Watch     *types.WatchedGroup  `json:"watch,omitempty"`
	Blacklist *types.RankBlacklist `json:"blacklist,omitempty"`
	RankLock  *types.RankLock      `json:"rankLock,omitempty"`
}

// Counts aggregates flag totals over every membership, shown or not.
type Counts struct {
	Total      int `json:"total"`
	Watched    int `json:"watched"`
	Flagged    int `json:"flagged"`
	RankLocked int `json:"rankLocked"`
}

// Result contains the outcome of checking a subject's memberships.
type Result struct {
	Memberships []FlaggedMembership `json:"memberships"`
	Counts      Counts              `json:"counts"`
}

// MembershipChecker cross-references memberships against policy rules.
type MembershipChecker struct {
	logger *zap.Logger
}

// NewMembershipChecker creates a MembershipChecker.
func NewMembershipChecker(logger *zap.Logger) *MembershipChecker {
	return &MembershipChecker{
		logger: logger.Named("membership_checker"),
	}
}

// Check evaluates every membership against the rules. Unflagged memberships are only
// included when showAll is set. Rank locks in rules must already be scoped to subjectID.
// A nil rule set flags nothing.
func (c *MembershipChecker) Check(
	subjectID uint64, memberships []types.Membership, rules *types.RuleSet, showAll bool,
) *Result {
	if rules == nil {
		rules = types.NewRuleSet()
	}

	result := &Result{
		Memberships: make([]FlaggedMembership, 0, len(memberships)),
	}

	for _, membership := range memberships {
		flagged := evaluate(subjectID, membership, rules)

		result.Counts.Total++
		if flagged.Flags.Has(FlagWatched) {
			result.Counts.Watched++
		}
		if flagged.State.IsFlagged() {
			result.Counts.Flagged++
		}
		if flagged.Flags.Has(FlagRankLocked) {
			result.Counts.RankLocked++
		}

		if showAll || flagged.State != StateUnflagged {
			result.Memberships = append(result.Memberships, flagged)
		}
	}

	slices.SortStableFunc(result.Memberships, compareMemberships)

	c.logger.Debug("Checked memberships",
		zap.Uint64("subjectID", subjectID),
		zap.Int("total", result.Counts.Total),
		zap.Int("watched", result.Counts.Watched),
		zap.Int("flagged", result.Counts.Flagged))

	return result
}

// evaluate matches one membership against the rules.
func evaluate(subjectID uint64, membership types.Membership, rules *types.RuleSet) FlaggedMembership {
	flagged := FlaggedMembership{Membership: membership, State: StateUnflagged}

	if watch, ok := rules.Watched[membership.GroupID]; ok {
		flagged.Flags |= FlagWatched
		flagged.Watch = watch
	}

	key := types.RankKey{GroupID: membership.GroupID, Rank: membership.Rank}
	if entry, ok := rules.RankBlacklist[key]; ok {
		flagged.Flags |= FlagRankBlacklisted
		flagged.Blacklist = entry
	}

	if lock, ok := rules.RankLocks[membership.GroupID]; ok && lock.RobloxUserID == subjectID {
		flagged.Flags |= FlagRankLocked
		flagged.RankLock = lock

		if membership.Rank > lock.MaxRank {
			flagged.Flags |= FlagRankLockExceeded
		}
	}

	switch {
	case flagged.Flags.Has(FlagRankBlacklisted):
		flagged.State = StateBlacklistedRank
	case flagged.Flags.Has(FlagRankLockExceeded):
		flagged.State = StateRankLockExceeded
	case flagged.Flags.Has(FlagWatched):
		flagged.State = StateWatched
	}

	return flagged
}

// compareMemberships orders by state precedence, then rank descending, then group ID.
func compareMemberships(a, b FlaggedMembership) int {
	if a.State != b.State {
		return int(a.State) - int(b.State)
	}

	if a.Rank != b.Rank {
		return int(b.Rank) - int(a.Rank)
	}

	switch {
	case a.GroupID < b.GroupID:
		return -1
	case a.GroupID > b.GroupID:
		return 1
	default:
		return 0
	}
}
