package bgcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/robalyx/bgcheck/internal/database"
	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/robalyx/bgcheck/internal/identity"
	"github.com/robalyx/bgcheck/internal/progress"
	"github.com/robalyx/bgcheck/internal/roblox/checker"
	"github.com/robalyx/bgcheck/internal/valuation"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// IdentityResolver maps caller input to a Roblox user ID.
type IdentityResolver interface {
	Resolve(ctx context.Context, guildID snowflake.ID, input identity.Input) (*identity.Resolution, error)
}

// ProfileSource fetches the profile of a Roblox user.
type ProfileSource interface {
	GetUserByID(ctx context.Context, userID uint64) (*types.Subject, error)
}

// MembershipSource fetches the groups a Roblox user belongs to.
type MembershipSource interface {
	GetUserGroups(ctx context.Context, userID uint64) ([]types.Membership, error)
}

// Valuer estimates the value of a Roblox user's inventory.
type Valuer interface {
	Estimate(ctx context.Context, userID uint64, stream *progress.Stream) *valuation.Estimate
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Resolver    IdentityResolver
	Profiles    ProfileSource
	Memberships MembershipSource
	Store       database.Store
	Checker     *checker.MembershipChecker
	Valuer      Valuer
}

// Options control a single background check.
type Options struct {
	ShowAll      bool             // Include unflagged memberships
	IncludeValue bool             // Run the inventory valuation
	Progress     *progress.Stream // Optional, finished before Run returns
}

// Service runs background checks.
type Service struct {
	deps   Dependencies
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates a Service.
func NewService(deps Dependencies, logger *zap.Logger) *Service {
	if deps.Checker == nil {
		deps.Checker = checker.NewMembershipChecker(logger)
	}

	return &Service{
		deps:   deps,
		logger: logger.Named("bgcheck"),
		tracer: otel.Tracer("github.com/robalyx/bgcheck/internal/bgcheck"),
		now:    time.Now,
	}
}

// Policy returns the policy store used by the service.
func (s *Service) Policy() database.Store {
	return s.deps.Store
}

// Run performs a background check of the subject identified by input within the guild.
// Identity, profile and membership failures abort the check. Policy store and valuation
// failures are recorded as notes on the report.
func (s *Service) Run(ctx context.Context, guildID snowflake.ID, input identity.Input, opts Options) (*Report, error) {
	defer opts.Progress.Finish("Background check complete")

	ctx, span := s.tracer.Start(ctx, "bgcheck.Run", trace.WithAttributes(
		attribute.String("guild.id", guildID.String()),
		attribute.Bool("bgcheck.include_value", opts.IncludeValue),
	))
	defer span.End()

	report, err := s.run(ctx, guildID, input, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("bgcheck.run_id", report.RunID.String()),
		attribute.Int("bgcheck.flagged", report.Counts.Flagged),
		attribute.Int("bgcheck.notes", len(report.Notes)),
	)

	return report, nil
}

func (s *Service) run(ctx context.Context, guildID snowflake.ID, input identity.Input, opts Options) (*Report, error) {
	runID := uuid.New()

	resolution, err := s.deps.Resolver.Resolve(ctx, guildID, input)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}

	userID := resolution.UserID

	// Profile and memberships are independent lookups
	var (
		subject     *types.Subject
		memberships []types.Membership
	)

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		var err error
		subject, err = s.deps.Profiles.GetUserByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to fetch profile: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		var err error
		memberships, err = s.deps.Memberships.GetUserGroups(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to fetch memberships: %w", err)
		}
		return nil
	})

	if err := p.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	report := &Report{
		RunID:          runID,
		GuildID:        guildID,
		Source:         resolution.Source,
		Subject:        *subject,
		AccountAgeDays: subject.AccountAgeDays(now),
		Notes:          []Note{},
	}

	rules, err := s.deps.Store.LoadRules(ctx, guildID, userID)
	if err != nil {
		rules = types.NewRuleSet()
		report.Notes = append(report.Notes, policyNote(err))

		s.logger.Warn("Continuing without policy rules",
			zap.String("runID", runID.String()),
			zap.String("guildID", guildID.String()),
			zap.Error(err))
	}

	result := s.deps.Checker.Check(userID, memberships, rules, opts.ShowAll)
	report.Memberships = result.Memberships
	report.Counts = result.Counts

	if rules.Subject != nil {
		blacklist := *rules.Subject
		report.SubjectBlacklist = &blacklist
		report.Notes = append(report.Notes, Note{
			Code:    NoteSubjectBlacklisted,
			Message: "Subject is blacklisted in this server: " + blacklist.Reason,
		})
	}

	if subject.IsBanned {
		report.Notes = append(report.Notes, Note{
			Code:    NoteSubjectBanned,
			Message: "Roblox account is terminated",
		})
	}

	if report.AccountAgeDays >= 0 && report.AccountAgeDays < NewAccountDays {
		report.Notes = append(report.Notes, Note{
			Code:    NoteNewAccount,
			Message: fmt.Sprintf("Account is only %d days old", report.AccountAgeDays),
		})
	}

	if opts.IncludeValue && s.deps.Valuer != nil {
		estimate := s.deps.Valuer.Estimate(ctx, userID, opts.Progress)
		report.Valuation = estimate
		report.Notes = append(report.Notes, valuationNotes(estimate)...)
	}

	report.GeneratedAt = s.now()

	s.logger.Info("Completed background check",
		zap.String("runID", runID.String()),
		zap.String("guildID", guildID.String()),
		zap.Uint64("userID", userID),
		zap.String("source", string(resolution.Source)),
		zap.Int("memberships", report.Counts.Total),
		zap.Int("flagged", report.Counts.Flagged),
		zap.Int("notes", len(report.Notes)))

	return report, nil
}

// policyNote describes why rules could not be loaded.
func policyNote(err error) Note {
	if errors.Is(err, database.ErrStoreDisabled) {
		return Note{
			Code:    NotePolicyStoreDisabled,
			Message: "Policy store is unavailable, no server rules were applied",
		}
	}

	return Note{
		Code:    NotePolicyStoreError,
		Message: "Policy rules could not be loaded, no server rules were applied",
	}
}

// valuationNotes turns estimate outcomes into report notes.
func valuationNotes(estimate *valuation.Estimate) []Note {
	if estimate.InventoryPrivate {
		return []Note{{Code: NoteInventoryBlocked, Message: valuation.CaveatInventoryPrivate}}
	}

	var notes []Note
	if estimate.EstimatedValue == nil {
		notes = append(notes, Note{Code: NotePricingUnavailable, Message: "Inventory value could not be estimated"})
	}

	if estimate.RateLimited > 0 {
		notes = append(notes, Note{
			Code:    NotePricingRateLimited,
			Message: fmt.Sprintf("%d items were not priced because the economy API was rate limiting", estimate.RateLimited),
		})
	}

	return notes
}
