// Package merging applies merge policy to match candidates and executes
// the per-entity-kind merge semantics
package merging

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/chorus/internal/database"
	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/pkg/models"
)

// Config holds merge policy switches
type Config struct {
	AutoMergeExact          bool
	AutoMergeHighConfidence bool
}

type trackStore interface {
	Get(ctx context.Context, id string) (*models.Track, error)
	Tombstone(ctx context.Context, id string, mergedInto string) error
	ReassignArtist(ctx context.Context, fromArtistID string, toArtistID string) (int64, error)
}

type artistStore interface {
	Get(ctx context.Context, id string) (*models.Artist, error)
	Tombstone(ctx context.Context, id string, mergedInto string) error
}

type albumStore interface {
	Get(ctx context.Context, id string) (*models.Album, error)
	Tombstone(ctx context.Context, id string, mergedInto string) error
}

type creditStore interface {
	Get(ctx context.Context, id string) (*models.Credit, error)
	Delete(ctx context.Context, id string) error
	CountByTrack(ctx context.Context, trackID string) (int, error)
}

type candidateStore interface {
	UpdateStatusByID(ctx context.Context, id string, status string, resolvedBy *string) error
	RejectOpenForEntity(ctx context.Context, entityID string, reason string) error
}

type decisionStore interface {
	Create(ctx context.Context, decision *models.MergeDecision) (*models.MergeDecision, error)
}

// TxBeginner starts or joins a context-scoped transaction
type TxBeginner interface {
	Begin(ctx context.Context) (context.Context, database.Tx, error)
}

type dbTxBeginner struct {
	db     database.DB
	logger ectologger.Logger
}

// NewTxBeginner wraps a database handle as a TxBeginner
func NewTxBeginner(db database.DB, logger ectologger.Logger) TxBeginner {
	return &dbTxBeginner{db: db, logger: logger}
}

func (b *dbTxBeginner) Begin(ctx context.Context) (context.Context, database.Tx, error) {
	return database.GetTx(ctx, b.logger, b.db, nil)
}

// Engine decides which candidates merge and executes the merges. Each merge
// runs in its own transaction; the two entities involved are locked by id so
// racing decisions cannot swap winner and loser.
type Engine struct {
	logger     ectologger.Logger
	tx         TxBeginner
	tracks     trackStore
	artists    artistStore
	albums     albumStore
	credits    creditStore
	candidates candidateStore
	decisions  decisionStore
	cfg        Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a merge engine
func NewEngine(
	logger ectologger.Logger,
	tx TxBeginner,
	tracks trackStore,
	artists artistStore,
	albums albumStore,
	credits creditStore,
	candidates candidateStore,
	decisions decisionStore,
	cfg Config,
) *Engine {
	return &Engine{
		logger:     logger,
		tx:         tx,
		tracks:     tracks,
		artists:    artists,
		albums:     albums,
		credits:    credits,
		candidates: candidates,
		decisions:  decisions,
		cfg:        cfg,
		locks:      make(map[string]*sync.Mutex),
	}
}

// ShouldAutoMerge applies the merge policy to one candidate
func (e *Engine) ShouldAutoMerge(c *models.MatchCandidate) (bool, string) {
	if c.MatchType == models.MatchTypeExact && e.cfg.AutoMergeExact {
		return true, "exact match"
	}
	if c.MatchType == models.MatchTypeCreditDuplicate && c.Confidence == models.ConfidenceCertain {
		return true, "certain credit duplicate"
	}
	if (c.Confidence == models.ConfidenceCertain || c.Confidence == models.ConfidenceHigh) && e.cfg.AutoMergeHighConfidence {
		return true, fmt.Sprintf("%s confidence", c.Confidence)
	}
	return false, "requires review"
}

// ApplyMerges processes candidates one at a time. Candidates that fail the
// policy are queued for review; a failed merge rolls back, records a failed
// decision, and processing continues with the next candidate.
func (e *Engine) ApplyMerges(ctx context.Context, candidates []models.MatchCandidate, dryRun bool) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.ApplyMerges")
	defer span.End()

	result := &models.MergeResult{}
	for i := range candidates {
		c := &candidates[i]
		if c.Status != models.MatchCandidateStatusPending {
			result.Skipped = append(result.Skipped, models.SkippedItem{EntityID: c.ID, Reason: fmt.Sprintf("candidate already %s", c.Status)})
			continue
		}

		auto, reason := e.ShouldAutoMerge(c)
		if !auto {
			decision := e.record(ctx, c, models.MergeOutcomeQueued, nil, nil, dryRun, reason)
			result.Decisions = append(result.Decisions, decision)
			continue
		}

		decision := e.mergeOne(ctx, c, dryRun, models.MatchCandidateStatusAutoMerged, "auto")
		result.Decisions = append(result.Decisions, decision)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"candidates": len(candidates),
		"decisions":  len(result.Decisions),
		"dry_run":    dryRun,
	}).Info("Merge pass complete")
	return result, nil
}

// Approve merges a reviewed candidate regardless of auto-merge policy
func (e *Engine) Approve(ctx context.Context, c *models.MatchCandidate, resolvedBy string) models.MergeDecision {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Approve")
	defer span.End()

	return e.mergeOne(ctx, c, false, models.MatchCandidateStatusApproved, resolvedBy)
}

// Reject marks a candidate as not-a-duplicate
func (e *Engine) Reject(ctx context.Context, c *models.MatchCandidate, resolvedBy string) (models.MergeDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Reject")
	defer span.End()

	if err := e.candidates.UpdateStatusByID(ctx, c.ID, models.MatchCandidateStatusRejected, &resolvedBy); err != nil {
		return models.MergeDecision{}, err
	}
	return e.record(ctx, c, models.MergeOutcomeRejected, nil, nil, false, fmt.Sprintf("rejected by %s", resolvedBy)), nil
}

// Defer pushes a candidate back for later review
func (e *Engine) Defer(ctx context.Context, c *models.MatchCandidate, resolvedBy string) (models.MergeDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Defer")
	defer span.End()

	if err := e.candidates.UpdateStatusByID(ctx, c.ID, models.MatchCandidateStatusDeferred, &resolvedBy); err != nil {
		return models.MergeDecision{}, err
	}
	return e.record(ctx, c, models.MergeOutcomeDeferred, nil, nil, false, fmt.Sprintf("deferred by %s", resolvedBy)), nil
}

// mergeOne executes a single merge in its own transaction. The deferred
// rollback is a no-op once the transaction committed.
func (e *Engine) mergeOne(ctx context.Context, c *models.MatchCandidate, dryRun bool, resolvedStatus string, resolvedBy string) models.MergeDecision {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.mergeOne")
	defer span.End()

	unlock := e.lockPair(c.EntityAID, c.EntityBID)
	defer unlock()

	winnerID, loserID, err := e.pickWinner(ctx, c)
	if err != nil {
		return e.record(ctx, c, models.MergeOutcomeFailed, nil, nil, dryRun, err.Error())
	}

	if dryRun {
		return e.record(ctx, c, models.MergeOutcomeApplied, &winnerID, &loserID, true, "dry run")
	}

	txCtx, tx, err := e.tx.Begin(ctx)
	if err != nil {
		return e.record(ctx, c, models.MergeOutcomeFailed, &winnerID, &loserID, false, err.Error())
	}
	defer tx.Rollback(txCtx)

	if err := e.applyKind(txCtx, c, winnerID, loserID); err != nil {
		return e.record(ctx, c, models.MergeOutcomeFailed, &winnerID, &loserID, false, err.Error())
	}

	if err := e.candidates.UpdateStatusByID(txCtx, c.ID, resolvedStatus, &resolvedBy); err != nil {
		return e.record(ctx, c, models.MergeOutcomeFailed, &winnerID, &loserID, false, err.Error())
	}
	if err := e.candidates.RejectOpenForEntity(txCtx, loserID, "entity tombstoned by merge"); err != nil {
		return e.record(ctx, c, models.MergeOutcomeFailed, &winnerID, &loserID, false, err.Error())
	}

	if err := tx.Commit(txCtx); err != nil {
		return e.record(ctx, c, models.MergeOutcomeFailed, &winnerID, &loserID, false, err.Error())
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": c.ID,
		"entity_kind":  c.EntityKind,
		"winner_id":    winnerID,
		"loser_id":     loserID,
	}).Info("Merge applied")
	return e.record(ctx, c, models.MergeOutcomeApplied, &winnerID, &loserID, false, "merged")
}

func (e *Engine) applyKind(ctx context.Context, c *models.MatchCandidate, winnerID, loserID string) error {
	switch c.EntityKind {
	case models.EntityKindTrack:
		return e.tracks.Tombstone(ctx, loserID, winnerID)
	case models.EntityKindArtist:
		if _, err := e.tracks.ReassignArtist(ctx, loserID, winnerID); err != nil {
			return err
		}
		return e.artists.Tombstone(ctx, loserID, winnerID)
	case models.EntityKindAlbum:
		return e.albums.Tombstone(ctx, loserID, winnerID)
	case models.EntityKindCredit:
		return e.credits.Delete(ctx, loserID)
	default:
		return fmt.Errorf("unknown entity kind %q", c.EntityKind)
	}
}

// pickWinner chooses which entity survives: richer record first (credits,
// external ids), then the older row, then the lower id
func (e *Engine) pickWinner(ctx context.Context, c *models.MatchCandidate) (string, string, error) {
	switch c.EntityKind {
	case models.EntityKindTrack:
		return e.pickTrackWinner(ctx, c.EntityAID, c.EntityBID)
	case models.EntityKindArtist:
		return e.pickArtistWinner(ctx, c.EntityAID, c.EntityBID)
	case models.EntityKindAlbum:
		return e.pickAlbumWinner(ctx, c.EntityAID, c.EntityBID)
	case models.EntityKindCredit:
		return e.pickCreditWinner(ctx, c.EntityAID, c.EntityBID)
	default:
		return "", "", fmt.Errorf("unknown entity kind %q", c.EntityKind)
	}
}

func (e *Engine) pickTrackWinner(ctx context.Context, aID, bID string) (string, string, error) {
	a, err := e.tracks.Get(ctx, aID)
	if err != nil {
		return "", "", err
	}
	b, err := e.tracks.Get(ctx, bID)
	if err != nil {
		return "", "", err
	}
	if a.Status != models.EntityStatusActive || b.Status != models.EntityStatusActive {
		return "", "", fmt.Errorf("track pair %s/%s is no longer active", aID, bID)
	}

	creditsA, err := e.credits.CountByTrack(ctx, aID)
	if err != nil {
		return "", "", err
	}
	creditsB, err := e.credits.CountByTrack(ctx, bID)
	if err != nil {
		return "", "", err
	}

	if creditsA != creditsB {
		return orderWinner(aID, bID, creditsA > creditsB)
	}
	if a.ExternalIDCount() != b.ExternalIDCount() {
		return orderWinner(aID, bID, a.ExternalIDCount() > b.ExternalIDCount())
	}
	return tieBreak(aID, bID, a.CreatedAt, b.CreatedAt)
}

func (e *Engine) pickArtistWinner(ctx context.Context, aID, bID string) (string, string, error) {
	a, err := e.artists.Get(ctx, aID)
	if err != nil {
		return "", "", err
	}
	b, err := e.artists.Get(ctx, bID)
	if err != nil {
		return "", "", err
	}
	if a.Status != models.EntityStatusActive || b.Status != models.EntityStatusActive {
		return "", "", fmt.Errorf("artist pair %s/%s is no longer active", aID, bID)
	}

	if a.ExternalIDCount() != b.ExternalIDCount() {
		return orderWinner(aID, bID, a.ExternalIDCount() > b.ExternalIDCount())
	}
	return tieBreak(aID, bID, a.CreatedAt, b.CreatedAt)
}

func (e *Engine) pickAlbumWinner(ctx context.Context, aID, bID string) (string, string, error) {
	a, err := e.albums.Get(ctx, aID)
	if err != nil {
		return "", "", err
	}
	b, err := e.albums.Get(ctx, bID)
	if err != nil {
		return "", "", err
	}
	if a.Status != models.EntityStatusActive || b.Status != models.EntityStatusActive {
		return "", "", fmt.Errorf("album pair %s/%s is no longer active", aID, bID)
	}

	if a.TrackCount != b.TrackCount {
		return orderWinner(aID, bID, a.TrackCount > b.TrackCount)
	}
	return tieBreak(aID, bID, a.CreatedAt, b.CreatedAt)
}

func (e *Engine) pickCreditWinner(ctx context.Context, aID, bID string) (string, string, error) {
	a, err := e.credits.Get(ctx, aID)
	if err != nil {
		return "", "", err
	}
	b, err := e.credits.Get(ctx, bID)
	if err != nil {
		return "", "", err
	}

	if a.Confidence != b.Confidence {
		return orderWinner(aID, bID, a.Confidence > b.Confidence)
	}
	return tieBreak(aID, bID, a.CreatedAt, b.CreatedAt)
}

func orderWinner(aID, bID string, aWins bool) (string, string, error) {
	if aWins {
		return aID, bID, nil
	}
	return bID, aID, nil
}

func tieBreak(aID, bID string, aCreated, bCreated time.Time) (string, string, error) {
	if !aCreated.Equal(bCreated) {
		return orderWinner(aID, bID, aCreated.Before(bCreated))
	}
	return orderWinner(aID, bID, aID < bID)
}

// lockPair takes the per-entity locks in sorted order so two concurrent
// merges touching the same entities cannot deadlock
func (e *Engine) lockPair(aID, bID string) func() {
	ids := []string{aID, bID}
	sort.Strings(ids)

	first := e.lockFor(ids[0])
	first.Lock()
	if ids[0] == ids[1] {
		return first.Unlock
	}
	second := e.lockFor(ids[1])
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}

func (e *Engine) lockFor(entityID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks[entityID] == nil {
		e.locks[entityID] = &sync.Mutex{}
	}
	return e.locks[entityID]
}

// record writes the decision audit row. Persistence failures are logged but
// never mask the merge outcome itself.
func (e *Engine) record(ctx context.Context, c *models.MatchCandidate, outcome models.MergeOutcome, winnerID, loserID *string, dryRun bool, reason string) models.MergeDecision {
	decision := models.MergeDecision{
		CandidateID: c.ID,
		Outcome:     outcome,
		WinnerID:    winnerID,
		LoserID:     loserID,
		DryRun:      dryRun,
		Reason:      reason,
		DecidedAt:   time.Now().UTC(),
	}

	if saved, err := e.decisions.Create(ctx, &decision); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": c.ID}).Error("Failed to record merge decision")
	} else {
		decision = *saved
	}
	return decision
}
