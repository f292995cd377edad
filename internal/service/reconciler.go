package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"creator_sync/internal/config"
	"creator_sync/internal/domain"
	"creator_sync/internal/extract"
	"creator_sync/internal/stats"
)

// Reconciler takes one target from fetch to a stored creator record.
type Reconciler struct {
	scraper    Scraper
	classifier Classifier
	creators   CreatorStore
	txManager  TransactionManager
	relocator  MediaRelocator
	publisher  Publisher
	logger     *slog.Logger
	config     config.SyncConfig
	now        func() time.Time
}

// NewReconciler wires the reconciler. relocator and publisher may be nil to
// disable media re-hosting and event publishing.
func NewReconciler(
	scraper Scraper,
	classifier Classifier,
	creators CreatorStore,
	txManager TransactionManager,
	relocator MediaRelocator,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *Reconciler {
	return &Reconciler{
		scraper:    scraper,
		classifier: classifier,
		creators:   creators,
		txManager:  txManager,
		relocator:  relocator,
		publisher:  publisher,
		logger:     logger.With("component", "reconciler"),
		config:     cfg,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for timestamps and the activity window.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

var _ ItemProcessor = (*Reconciler)(nil)

// Process never panics and never returns an error: every failure is folded into the result.
func (r *Reconciler) Process(ctx context.Context, target domain.Target, primaryNiche string) (result domain.ItemResult) {
	target.Handle = extract.NormalizeHandle(target.Handle)
	result = domain.ItemResult{Target: target}
	logger := r.logger.With("handle", target.Handle, "platform", target.Platform)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("reconcile panicked", "panic", p, "stack", string(debug.Stack()))
			result = failed(target, fmt.Errorf("internal error: %v", p))
		}
	}()

	if target.Handle == "" {
		return skipped(target, "empty handle")
	}
	if _, err := domain.ParsePlatform(string(target.Platform)); err != nil {
		return skipped(target, "unsupported platform "+string(target.Platform))
	}

	payload, err := r.scraper.FetchProfile(ctx, target.Platform, target.Handle)
	if err != nil {
		logger.Warn("fetch failed", "error", err)
		return failed(target, fmt.Errorf("fetch: %w", err))
	}
	if payload.Handle == "" {
		payload.Handle = target.Handle
	}
	payload.Platform = target.Platform

	result = r.reconcile(ctx, target, payload, primaryNiche)
	if result.Outcome != domain.OutcomeAdded && result.Outcome != domain.OutcomeUpdated {
		return result
	}

	r.relocate(ctx, result.Record)
	r.publish(ctx, result.Record, result.Outcome == domain.OutcomeAdded)

	logger.Info("creator reconciled",
		"outcome", result.Outcome,
		"followers", result.Record.Followers,
		"secondary_niche", result.Record.SecondaryNiche,
		"buzz_score", result.Record.BuzzScore,
	)
	return result
}

func (r *Reconciler) reconcile(ctx context.Context, target domain.Target, payload *domain.RawProfilePayload, primaryNiche string) domain.ItemResult {
	existing, err := r.creators.Find(ctx, target.Platform, target.Handle)
	if err != nil && !errors.Is(err, domain.ErrCreatorNotFound) {
		return failed(target, fmt.Errorf("lookup: %w", err))
	}

	snap := buildSnapshot(payload, primaryNiche, r.config.MaxPosts, r.config.SkipRecentPosts)

	// A known creator that suddenly reports no followers or no engagement is a broken fetch.
	if existing != nil {
		if reason, ok := validRefresh(snap.record); !ok {
			r.logger.Warn("refusing refresh", "handle", target.Handle, "platform", target.Platform, "reason", reason)
			return failed(target, fmt.Errorf("%w: %s", domain.ErrDataQuality, reason))
		}
	}

	if reason, ok := r.eligible(ctx, payload, primaryNiche); !ok {
		r.logger.Info("creator filtered", "handle", target.Handle, "platform", target.Platform, "reason", reason)
		return domain.ItemResult{Target: target, Outcome: domain.OutcomeFiltered, Reason: reason}
	}

	if existing == nil {
		return r.add(ctx, target, snap)
	}
	return r.update(ctx, target, snap, existing)
}

// eligible checks follower range, recent activity and domain relevance, cheapest first.
// Nothing with side effects runs before it.
func (r *Reconciler) eligible(ctx context.Context, p *domain.RawProfilePayload, primaryNiche string) (string, bool) {
	if p.Followers < r.config.MinFollowers || p.Followers > r.config.MaxFollowers {
		return fmt.Sprintf("followers %d outside range %d-%d", p.Followers, r.config.MinFollowers, r.config.MaxFollowers), false
	}
	if !extract.IsActive(p.Posts, r.config.ActivityWindow, r.now()) {
		return fmt.Sprintf("no posts in the last %s", formatWindow(r.config.ActivityWindow)), false
	}
	if !r.classifier.IsInDomain(ctx, primaryNiche, p.Handle, p.DisplayName, p.Bio) {
		return "not a " + primaryNiche + " creator", false
	}
	return "", true
}

func (r *Reconciler) add(ctx context.Context, target domain.Target, snap snapshot) domain.ItemResult {
	rec := snap.record
	primary := rec.PrimaryNiche

	secondary, err := r.classifier.SecondaryNiche(ctx, primary, snap.hashtags, rec.Bio, snap.taggedUsers)
	if err != nil {
		r.logger.Warn("secondary niche fallback", "handle", target.Handle, "error", err)
	}
	rec.SecondaryNiche = secondary

	location, err := r.classifier.Location(ctx, snap.location)
	if err != nil {
		r.logger.Warn("location fallback", "handle", target.Handle, "error", err)
	}
	rec.Location = location

	rec.BuzzScore = stats.DefaultBuzzScore
	now := r.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	var existing *domain.CreatorRecord
	err = r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		found, err := r.creators.Find(txCtx, target.Platform, target.Handle)
		if err == nil {
			existing = found
			return nil
		}
		if !errors.Is(err, domain.ErrCreatorNotFound) {
			return fmt.Errorf("re-check: %w", err)
		}

		id, err := r.creators.Insert(txCtx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		return nil
	})

	if errors.Is(err, domain.ErrDuplicateCreator) {
		// Another job inserted the same handle between our lookups.
		existing, err = r.creators.Find(ctx, target.Platform, target.Handle)
		if err != nil {
			return failed(target, fmt.Errorf("load concurrent insert: %w", err))
		}
	}
	if err != nil {
		return failed(target, fmt.Errorf("insert: %w", err))
	}

	if existing != nil {
		r.logger.Info("creator appeared concurrently, updating instead", "handle", target.Handle)
		if reason, ok := validRefresh(rec); !ok {
			return failed(target, fmt.Errorf("%w: %s", domain.ErrDataQuality, reason))
		}
		return r.updateClassified(ctx, target, snap, existing, secondary, location)
	}

	return domain.ItemResult{Target: target, Outcome: domain.OutcomeAdded, Record: rec}
}

func (r *Reconciler) update(ctx context.Context, target domain.Target, snap snapshot, existing *domain.CreatorRecord) domain.ItemResult {
	rec := snap.record
	primary := existing.PrimaryNiche

	secondary, err := r.classifier.SecondaryNiche(ctx, primary, snap.hashtags, rec.Bio, snap.taggedUsers)
	if err != nil {
		r.logger.Warn("secondary niche call failed, keeping previous", "handle", target.Handle, "error", err)
		secondary = keep(existing.SecondaryNiche, secondary)
	}

	location, err := r.classifier.Location(ctx, snap.location)
	if err != nil {
		r.logger.Warn("location call failed, keeping previous", "handle", target.Handle, "error", err)
		location = keep(existing.Location, location)
	}

	return r.updateClassified(ctx, target, snap, existing, secondary, location)
}

// updateClassified writes a validated, classified snapshot over existing.
func (r *Reconciler) updateClassified(ctx context.Context, target domain.Target, snap snapshot, existing *domain.CreatorRecord, secondary, location string) domain.ItemResult {
	rec := snap.record
	rec.ID = existing.ID
	rec.PrimaryNiche = existing.PrimaryNiche
	rec.CreatedAt = existing.CreatedAt
	rec.SecondaryNiche = secondary
	rec.Location = location
	rec.UpdatedAt = r.now().UTC()

	applyChanges(rec, existing)
	rec.BuzzScore = stats.BuzzScore(rec, existing, r.config.BuzzWeights)

	if err := r.creators.Update(ctx, rec); err != nil {
		return failed(target, fmt.Errorf("update: %w", err))
	}

	return domain.ItemResult{Target: target, Outcome: domain.OutcomeUpdated, Record: rec}
}

// relocate re-hosts media and writes the new URLs back. Failures only cost the media.
func (r *Reconciler) relocate(ctx context.Context, rec *domain.CreatorRecord) {
	if r.relocator == nil || rec.ID == 0 {
		return
	}

	update := r.relocator.RelocateCreator(ctx, rec)
	if update.Empty() {
		return
	}

	if update.AvatarURL != "" {
		rec.AvatarURL = update.AvatarURL
	}
	for i, u := range update.PostMedia {
		if i >= 0 && i < len(rec.Posts) {
			rec.Posts[i].MediaURL = u
		}
	}

	if err := r.creators.UpdateMedia(ctx, rec.ID, rec.AvatarURL, rec.Posts); err != nil {
		r.logger.Warn("write back relocated media failed", "handle", rec.Handle, "error", err)
	}
}

func (r *Reconciler) publish(ctx context.Context, rec *domain.CreatorRecord, isNew bool) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, rec, isNew); err != nil {
		r.logger.Warn("publish failed", "handle", rec.Handle, "error", err)
	}
}

// validRefresh rejects snapshots that look like a broken fetch rather than a real creator state.
func validRefresh(rec *domain.CreatorRecord) (string, bool) {
	if rec.Followers == 0 {
		return "zero followers", false
	}
	if !rec.HasEngagement() {
		return "zero engagement", false
	}
	return "", true
}

func keep(previous, fallback string) string {
	if previous != "" {
		return previous
	}
	return fallback
}

func failed(target domain.Target, err error) domain.ItemResult {
	return domain.ItemResult{
		Target:  target,
		Outcome: domain.OutcomeFailed,
		Reason:  describe(err),
		Err:     err,
	}
}

func skipped(target domain.Target, reason string) domain.ItemResult {
	return domain.ItemResult{Target: target, Outcome: domain.OutcomeSkipped, Reason: reason}
}

// describe keeps failure reasons short for the job summary.
func describe(err error) string {
	for _, sentinel := range []error{
		domain.ErrNotFound,
		domain.ErrAccessDenied,
		domain.ErrRateLimited,
		domain.ErrServer,
		domain.ErrTimeout,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout.Error()
	}
	return err.Error()
}

func formatWindow(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	}
	return d.String()
}
