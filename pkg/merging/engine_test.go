package merging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/chorus/internal/database"
	"github.com/Ramsey-B/chorus/pkg/models"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeTx struct {
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) IsOpen() bool { return !f.committed && !f.rolledBack }
func (f *fakeTx) Commit(ctx context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}
func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}
func (f *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (f *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (f *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

type fakeTxBeginner struct {
	txs []*fakeTx
}

func (f *fakeTxBeginner) Begin(ctx context.Context) (context.Context, database.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return ctx, tx, nil
}

type fakeTrackStore struct {
	tracks       map[string]*models.Track
	tombstoned   map[string]string
	reassigned   map[string]string
	tombstoneErr error
}

func (f *fakeTrackStore) Get(ctx context.Context, id string) (*models.Track, error) {
	t, ok := f.tracks[id]
	if !ok {
		return nil, errors.New("track not found")
	}
	return t, nil
}

func (f *fakeTrackStore) Tombstone(ctx context.Context, id string, mergedInto string) error {
	if f.tombstoneErr != nil {
		return f.tombstoneErr
	}
	if f.tombstoned == nil {
		f.tombstoned = map[string]string{}
	}
	f.tombstoned[id] = mergedInto
	return nil
}

func (f *fakeTrackStore) ReassignArtist(ctx context.Context, fromArtistID string, toArtistID string) (int64, error) {
	if f.reassigned == nil {
		f.reassigned = map[string]string{}
	}
	f.reassigned[fromArtistID] = toArtistID
	return 1, nil
}

type fakeArtistStore struct {
	artists    map[string]*models.Artist
	tombstoned map[string]string
}

func (f *fakeArtistStore) Get(ctx context.Context, id string) (*models.Artist, error) {
	a, ok := f.artists[id]
	if !ok {
		return nil, errors.New("artist not found")
	}
	return a, nil
}

func (f *fakeArtistStore) Tombstone(ctx context.Context, id string, mergedInto string) error {
	if f.tombstoned == nil {
		f.tombstoned = map[string]string{}
	}
	f.tombstoned[id] = mergedInto
	return nil
}

type fakeAlbumStore struct {
	albums     map[string]*models.Album
	tombstoned map[string]string
}

func (f *fakeAlbumStore) Get(ctx context.Context, id string) (*models.Album, error) {
	a, ok := f.albums[id]
	if !ok {
		return nil, errors.New("album not found")
	}
	return a, nil
}

func (f *fakeAlbumStore) Tombstone(ctx context.Context, id string, mergedInto string) error {
	if f.tombstoned == nil {
		f.tombstoned = map[string]string{}
	}
	f.tombstoned[id] = mergedInto
	return nil
}

type fakeCreditStore struct {
	credits map[string]*models.Credit
	counts  map[string]int
	deleted []string
}

func (f *fakeCreditStore) Get(ctx context.Context, id string) (*models.Credit, error) {
	c, ok := f.credits[id]
	if !ok {
		return nil, errors.New("credit not found")
	}
	return c, nil
}

func (f *fakeCreditStore) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCreditStore) CountByTrack(ctx context.Context, trackID string) (int, error) {
	return f.counts[trackID], nil
}

type fakeCandidateStore struct {
	statuses map[string]string
	rejected []string
}

func (f *fakeCandidateStore) UpdateStatusByID(ctx context.Context, id string, status string, resolvedBy *string) error {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeCandidateStore) RejectOpenForEntity(ctx context.Context, entityID string, reason string) error {
	f.rejected = append(f.rejected, entityID)
	return nil
}

type fakeDecisionStore struct {
	created []models.MergeDecision
}

func (f *fakeDecisionStore) Create(ctx context.Context, decision *models.MergeDecision) (*models.MergeDecision, error) {
	decision.ID = "decision-" + decision.CandidateID
	f.created = append(f.created, *decision)
	return decision, nil
}

type engineFixture struct {
	engine     *Engine
	tx         *fakeTxBeginner
	tracks     *fakeTrackStore
	artists    *fakeArtistStore
	albums     *fakeAlbumStore
	credits    *fakeCreditStore
	candidates *fakeCandidateStore
	decisions  *fakeDecisionStore
}

func newFixture(cfg Config) *engineFixture {
	f := &engineFixture{
		tx:         &fakeTxBeginner{},
		tracks:     &fakeTrackStore{tracks: map[string]*models.Track{}},
		artists:    &fakeArtistStore{artists: map[string]*models.Artist{}},
		albums:     &fakeAlbumStore{albums: map[string]*models.Album{}},
		credits:    &fakeCreditStore{credits: map[string]*models.Credit{}, counts: map[string]int{}},
		candidates: &fakeCandidateStore{},
		decisions:  &fakeDecisionStore{},
	}
	f.engine = NewEngine(testLogger(), f.tx, f.tracks, f.artists, f.albums, f.credits, f.candidates, f.decisions, cfg)
	return f
}

func activeTrack(id string, createdAt time.Time, externalIDs string) *models.Track {
	t := &models.Track{
		ID:        id,
		Status:    models.EntityStatusActive,
		CreatedAt: createdAt,
	}
	if externalIDs != "" {
		t.ExternalIDs = json.RawMessage(externalIDs)
	}
	return t
}

func pendingCandidate(id string, kind models.EntityKind, aID, bID string, matchType models.MatchType, score float64) models.MatchCandidate {
	return models.MatchCandidate{
		ID:         id,
		EntityKind: kind,
		EntityAID:  aID,
		EntityBID:  bID,
		MatchType:  matchType,
		Score:      score,
		Confidence: models.ConfidenceTierFor(score),
		Status:     models.MatchCandidateStatusPending,
	}
}

func TestShouldAutoMerge(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		candidate models.MatchCandidate
		want      bool
	}{
		{
			name:      "exact merges when enabled",
			cfg:       Config{AutoMergeExact: true},
			candidate: pendingCandidate("c1", models.EntityKindTrack, "a", "b", models.MatchTypeExact, 1.0),
			want:      true,
		},
		{
			name:      "exact queued when disabled",
			cfg:       Config{},
			candidate: pendingCandidate("c1", models.EntityKindTrack, "a", "b", models.MatchTypeExact, 1.0),
			want:      false,
		},
		{
			name:      "certain credit duplicate always merges",
			cfg:       Config{},
			candidate: pendingCandidate("c1", models.EntityKindCredit, "a", "b", models.MatchTypeCreditDuplicate, 1.0),
			want:      true,
		},
		{
			name:      "medium credit duplicate needs review",
			cfg:       Config{},
			candidate: pendingCandidate("c1", models.EntityKindCredit, "a", "b", models.MatchTypeCreditDuplicate, 0.91),
			want:      false,
		},
		{
			name:      "high tier variant merges only with the high-confidence switch",
			cfg:       Config{AutoMergeHighConfidence: true},
			candidate: pendingCandidate("c1", models.EntityKindTrack, "a", "b", models.MatchTypeSimilarTitle, 0.92),
			want:      true,
		},
		{
			name:      "low tier never auto-merges",
			cfg:       Config{AutoMergeExact: true, AutoMergeHighConfidence: true},
			candidate: pendingCandidate("c1", models.EntityKindTrack, "a", "b", models.MatchTypeSimilarTitle, 0.55),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.cfg)
			got, _ := f.engine.ShouldAutoMerge(&tt.candidate)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyMerges_TrackWinnerSelection(t *testing.T) {
	f := newFixture(Config{AutoMergeExact: true})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.tracks.tracks["t1"] = activeTrack("t1", base, "")
	f.tracks.tracks["t2"] = activeTrack("t2", base.Add(time.Hour), "")
	f.credits.counts["t1"] = 1
	f.credits.counts["t2"] = 5

	candidates := []models.MatchCandidate{
		pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeExact, 1.0),
	}

	result, err := f.engine.ApplyMerges(context.Background(), candidates, false)
	require.NoError(t, err)

	require.Len(t, result.Decisions, 1)
	d := result.Decisions[0]
	assert.Equal(t, models.MergeOutcomeApplied, d.Outcome)
	require.NotNil(t, d.WinnerID)
	assert.Equal(t, "t2", *d.WinnerID)
	assert.Equal(t, "t1", *d.LoserID)

	// Loser tombstoned, candidate resolved, open candidates on loser closed
	assert.Equal(t, "t2", f.tracks.tombstoned["t1"])
	assert.Equal(t, models.MatchCandidateStatusAutoMerged, f.candidates.statuses["c1"])
	assert.Contains(t, f.candidates.rejected, "t1")
	require.Len(t, f.tx.txs, 1)
	assert.True(t, f.tx.txs[0].committed)
}

func TestApplyMerges_WinnerTieBreaks(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("external ids break credit ties", func(t *testing.T) {
		f := newFixture(Config{AutoMergeExact: true})
		f.tracks.tracks["t1"] = activeTrack("t1", base, `{"spotify":"x"}`)
		f.tracks.tracks["t2"] = activeTrack("t2", base, `{"spotify":"x","genius":"y"}`)

		result, err := f.engine.ApplyMerges(context.Background(),
			[]models.MatchCandidate{pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeExact, 1.0)}, false)
		require.NoError(t, err)
		assert.Equal(t, "t2", *result.Decisions[0].WinnerID)
	})

	t.Run("earlier created_at breaks remaining ties", func(t *testing.T) {
		f := newFixture(Config{AutoMergeExact: true})
		f.tracks.tracks["t1"] = activeTrack("t1", base.Add(time.Hour), "")
		f.tracks.tracks["t2"] = activeTrack("t2", base, "")

		result, err := f.engine.ApplyMerges(context.Background(),
			[]models.MatchCandidate{pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeExact, 1.0)}, false)
		require.NoError(t, err)
		assert.Equal(t, "t2", *result.Decisions[0].WinnerID)
	})

	t.Run("lower id wins a full tie", func(t *testing.T) {
		f := newFixture(Config{AutoMergeExact: true})
		f.tracks.tracks["t1"] = activeTrack("t1", base, "")
		f.tracks.tracks["t2"] = activeTrack("t2", base, "")

		result, err := f.engine.ApplyMerges(context.Background(),
			[]models.MatchCandidate{pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeExact, 1.0)}, false)
		require.NoError(t, err)
		assert.Equal(t, "t1", *result.Decisions[0].WinnerID)
	})
}

func TestApplyMerges_DryRun(t *testing.T) {
	f := newFixture(Config{AutoMergeExact: true})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.tracks.tracks["t1"] = activeTrack("t1", base, "")
	f.tracks.tracks["t2"] = activeTrack("t2", base.Add(time.Hour), "")

	result, err := f.engine.ApplyMerges(context.Background(),
		[]models.MatchCandidate{pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeExact, 1.0)}, true)
	require.NoError(t, err)

	require.Len(t, result.Decisions, 1)
	assert.Equal(t, models.MergeOutcomeApplied, result.Decisions[0].Outcome)
	assert.True(t, result.Decisions[0].DryRun)
	assert.Equal(t, "t1", *result.Decisions[0].WinnerID)

	// No writes on dry run
	assert.Empty(t, f.tracks.tombstoned)
	assert.Empty(t, f.candidates.statuses)
	assert.Empty(t, f.tx.txs)
}

func TestApplyMerges_QueuesReviewCases(t *testing.T) {
	f := newFixture(Config{AutoMergeExact: true})

	result, err := f.engine.ApplyMerges(context.Background(),
		[]models.MatchCandidate{pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeSimilarTitle, 0.92)}, false)
	require.NoError(t, err)

	require.Len(t, result.Decisions, 1)
	assert.Equal(t, models.MergeOutcomeQueued, result.Decisions[0].Outcome)
	assert.Empty(t, f.tracks.tombstoned)
	assert.Empty(t, f.candidates.statuses)
}

func TestApplyMerges_FailureRollsBackAndContinues(t *testing.T) {
	f := newFixture(Config{AutoMergeExact: true})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.tracks.tracks["t1"] = activeTrack("t1", base, "")
	f.tracks.tracks["t2"] = activeTrack("t2", base.Add(time.Hour), "")
	f.tracks.tracks["t3"] = activeTrack("t3", base, "")
	f.tracks.tracks["t4"] = activeTrack("t4", base.Add(time.Hour), "")
	f.tracks.tombstoneErr = errors.New("disk on fire")

	candidates := []models.MatchCandidate{
		pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeExact, 1.0),
		pendingCandidate("c2", models.EntityKindTrack, "t3", "t4", models.MatchTypeExact, 1.0),
	}

	result, err := f.engine.ApplyMerges(context.Background(), candidates, false)
	require.NoError(t, err)

	// Both candidates processed despite the first failing
	require.Len(t, result.Decisions, 2)
	assert.Equal(t, models.MergeOutcomeFailed, result.Decisions[0].Outcome)
	assert.Equal(t, models.MergeOutcomeFailed, result.Decisions[1].Outcome)
	for _, tx := range f.tx.txs {
		assert.True(t, tx.rolledBack)
		assert.False(t, tx.committed)
	}
	assert.Empty(t, f.candidates.statuses)
}

func TestApplyMerges_SkipsResolvedCandidates(t *testing.T) {
	f := newFixture(Config{AutoMergeExact: true})
	c := pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeExact, 1.0)
	c.Status = models.MatchCandidateStatusRejected

	result, err := f.engine.ApplyMerges(context.Background(), []models.MatchCandidate{c}, false)
	require.NoError(t, err)

	assert.Empty(t, result.Decisions)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "c1", result.Skipped[0].EntityID)
}

func TestApplyMerges_ArtistMergeReparentsTracks(t *testing.T) {
	f := newFixture(Config{AutoMergeExact: true})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.artists.artists["a1"] = &models.Artist{ID: "a1", Status: models.EntityStatusActive, CreatedAt: base, ExternalIDs: json.RawMessage(`{"genius":"1"}`)}
	f.artists.artists["a2"] = &models.Artist{ID: "a2", Status: models.EntityStatusActive, CreatedAt: base}

	result, err := f.engine.ApplyMerges(context.Background(),
		[]models.MatchCandidate{pendingCandidate("c1", models.EntityKindArtist, "a1", "a2", models.MatchTypeExact, 1.0)}, false)
	require.NoError(t, err)

	assert.Equal(t, "a1", *result.Decisions[0].WinnerID)
	assert.Equal(t, "a1", f.tracks.reassigned["a2"])
	assert.Equal(t, "a1", f.artists.tombstoned["a2"])
}

func TestApplyMerges_CreditMergeDeletesLowerConfidence(t *testing.T) {
	f := newFixture(Config{})
	f.credits.credits["cr1"] = &models.Credit{ID: "cr1", Confidence: 0.95}
	f.credits.credits["cr2"] = &models.Credit{ID: "cr2", Confidence: 0.80}

	result, err := f.engine.ApplyMerges(context.Background(),
		[]models.MatchCandidate{pendingCandidate("c1", models.EntityKindCredit, "cr1", "cr2", models.MatchTypeCreditDuplicate, 1.0)}, false)
	require.NoError(t, err)

	assert.Equal(t, models.MergeOutcomeApplied, result.Decisions[0].Outcome)
	assert.Equal(t, "cr1", *result.Decisions[0].WinnerID)
	assert.Equal(t, []string{"cr2"}, f.credits.deleted)
}

func TestApplyMerges_TombstonedEntityFailsCleanly(t *testing.T) {
	f := newFixture(Config{AutoMergeExact: true})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.tracks.tracks["t1"] = activeTrack("t1", base, "")
	t2 := activeTrack("t2", base, "")
	t2.Status = models.EntityStatusTombstoned
	f.tracks.tracks["t2"] = t2

	result, err := f.engine.ApplyMerges(context.Background(),
		[]models.MatchCandidate{pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeExact, 1.0)}, false)
	require.NoError(t, err)

	assert.Equal(t, models.MergeOutcomeFailed, result.Decisions[0].Outcome)
	assert.Empty(t, f.tracks.tombstoned)
}

func TestRejectAndDefer(t *testing.T) {
	f := newFixture(Config{})
	c := pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeSimilarTitle, 0.92)

	d, err := f.engine.Reject(context.Background(), &c, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, models.MergeOutcomeRejected, d.Outcome)
	assert.Equal(t, models.MatchCandidateStatusRejected, f.candidates.statuses["c1"])

	d, err = f.engine.Defer(context.Background(), &c, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, models.MergeOutcomeDeferred, d.Outcome)
	assert.Equal(t, models.MatchCandidateStatusDeferred, f.candidates.statuses["c1"])
}

func TestApprove_MergesRegardlessOfPolicy(t *testing.T) {
	f := newFixture(Config{})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.tracks.tracks["t1"] = activeTrack("t1", base, "")
	f.tracks.tracks["t2"] = activeTrack("t2", base.Add(time.Hour), "")

	c := pendingCandidate("c1", models.EntityKindTrack, "t1", "t2", models.MatchTypeSimilarTitle, 0.92)
	d := f.engine.Approve(context.Background(), &c, "reviewer")

	assert.Equal(t, models.MergeOutcomeApplied, d.Outcome)
	assert.Equal(t, "t1", *d.WinnerID)
	assert.Equal(t, models.MatchCandidateStatusApproved, f.candidates.statuses["c1"])
	assert.Equal(t, "t1", f.tracks.tombstoned["t2"])
}
