package dedup

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/chorus/pkg/models"
	"github.com/Ramsey-B/chorus/pkg/normalizers"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeTrackStore struct {
	tracks []models.Track
}

func (f *fakeTrackStore) ListByArtist(ctx context.Context, artistID string) ([]models.Track, error) {
	return f.tracks, nil
}

func (f *fakeTrackStore) ListByIDs(ctx context.Context, ids []string) ([]models.Track, error) {
	return f.tracks, nil
}

type fakeArtistStore struct {
	artists []models.Artist
}

func (f *fakeArtistStore) ListByIDs(ctx context.Context, ids []string) ([]models.Artist, error) {
	return f.artists, nil
}

type fakeAlbumStore struct {
	albums []models.Album
}

func (f *fakeAlbumStore) ListByArtist(ctx context.Context, artistID string) ([]models.Album, error) {
	return f.albums, nil
}

type fakeCreditStore struct {
	credits []models.Credit
}

func (f *fakeCreditStore) ListByTrack(ctx context.Context, trackID string) ([]models.Credit, error) {
	return f.credits, nil
}

type fakeCandidateStore struct {
	saved []*models.MatchCandidate
}

func (f *fakeCandidateStore) CreateBatch(ctx context.Context, candidates []*models.MatchCandidate) error {
	f.saved = append(f.saved, candidates...)
	return nil
}

func testConfig() Config {
	return Config{
		HighSimilarityThreshold: 0.90,
		FeaturingBaseThreshold:  0.95,
		CreditNameThreshold:     0.90,
		WorkerCount:             2,
	}
}

func newTestDetector(tracks *fakeTrackStore, artists *fakeArtistStore, albums *fakeAlbumStore, credits *fakeCreditStore, candidates *fakeCandidateStore) *Detector {
	return NewDetector(tracks, artists, albums, credits, candidates, nil, testConfig(), testLogger())
}

func makeTrack(id, title string, featuring ...string) models.Track {
	var feat json.RawMessage
	if len(featuring) > 0 {
		feat, _ = json.Marshal(featuring)
	}
	return models.Track{
		ID:              id,
		Title:           title,
		NormalizedTitle: normalizers.NormalizeTitle(title),
		ArtistID:        "artist-1",
		Featuring:       feat,
		Status:          models.EntityStatusActive,
	}
}

func TestDetectTracks_Classification(t *testing.T) {
	tests := []struct {
		name          string
		tracks        []models.Track
		wantType      models.MatchType
		wantTier      models.ConfidenceTier
		wantNoMatches bool
	}{
		{
			name: "identical normalized titles are exact",
			tracks: []models.Track{
				makeTrack("t1", "HUMBLE."),
				makeTrack("t2", "Humble"),
			},
			wantType: models.MatchTypeExact,
			wantTier: models.ConfidenceCertain,
		},
		{
			name: "radio edit is a remix variant",
			tracks: []models.Track{
				makeTrack("t1", "Money Trees"),
				makeTrack("t2", "Money Trees (Radio Edit)"),
			},
			wantType: models.MatchTypeRemixVariant,
			wantTier: models.ConfidenceHigh,
		},
		{
			name: "featuring difference on same base",
			tracks: []models.Track{
				makeTrack("t1", "Sicko Mode"),
				makeTrack("t2", "Sicko Mode (feat. Drake)"),
			},
			wantType: models.MatchTypeFeaturingVariant,
			wantTier: models.ConfidenceCertain,
		},
		{
			name: "near-identical titles are similar",
			tracks: []models.Track{
				makeTrack("t1", "Bound 2"),
				makeTrack("t2", "Bound 2!"),
			},
			wantType: models.MatchTypeExact,
			wantTier: models.ConfidenceCertain,
		},
		{
			name: "unrelated titles produce nothing",
			tracks: []models.Track{
				makeTrack("t1", "Alright"),
				makeTrack("t2", "Backseat Freestyle"),
			},
			wantNoMatches: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := &fakeCandidateStore{}
			d := newTestDetector(&fakeTrackStore{tracks: tt.tracks}, &fakeArtistStore{}, &fakeAlbumStore{}, &fakeCreditStore{}, candidates)

			result, err := d.DetectTracks(context.Background(), Scope{ArtistID: "artist-1"})
			require.NoError(t, err)

			if tt.wantNoMatches {
				assert.Empty(t, result.Candidates)
				assert.Empty(t, candidates.saved)
				return
			}

			require.Len(t, result.Candidates, 1)
			c := result.Candidates[0]
			assert.Equal(t, tt.wantType, c.MatchType)
			assert.Equal(t, tt.wantTier, c.Confidence)
			assert.Equal(t, models.EntityKindTrack, c.EntityKind)
			assert.Equal(t, "t1", c.EntityAID)
			assert.Equal(t, "t2", c.EntityBID)
			assert.Len(t, candidates.saved, 1)
		})
	}
}

func TestDetectTracks_RequiresScope(t *testing.T) {
	d := newTestDetector(&fakeTrackStore{}, &fakeArtistStore{}, &fakeAlbumStore{}, &fakeCreditStore{}, &fakeCandidateStore{})

	_, err := d.DetectTracks(context.Background(), Scope{})
	require.Error(t, err)
}

func TestDetectTracks_SkipsMalformed(t *testing.T) {
	tracks := []models.Track{
		{ID: "t1", Title: "???", NormalizedTitle: ""},
		makeTrack("t2", "Poetic Justice"),
		makeTrack("t3", "Poetic Justice"),
	}
	candidates := &fakeCandidateStore{}
	d := newTestDetector(&fakeTrackStore{tracks: tracks}, &fakeArtistStore{}, &fakeAlbumStore{}, &fakeCreditStore{}, candidates)

	result, err := d.DetectTracks(context.Background(), Scope{ArtistID: "artist-1"})
	require.NoError(t, err)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "t1", result.Skipped[0].EntityID)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, models.MatchTypeExact, result.Candidates[0].MatchType)
}

func TestDetectTracks_StablePairOrdering(t *testing.T) {
	// Input order should not affect output pair order
	tracks := []models.Track{
		makeTrack("t3", "King Kunta"),
		makeTrack("t1", "King Kunta"),
		makeTrack("t2", "King Kunta"),
	}
	d := newTestDetector(&fakeTrackStore{tracks: tracks}, &fakeArtistStore{}, &fakeAlbumStore{}, &fakeCreditStore{}, &fakeCandidateStore{})

	result, err := d.DetectTracks(context.Background(), Scope{ArtistID: "artist-1"})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 3)
	for _, c := range result.Candidates {
		assert.Less(t, c.EntityAID, c.EntityBID)
	}
	assert.Equal(t, "t1", result.Candidates[0].EntityAID)
	assert.Equal(t, "t2", result.Candidates[0].EntityBID)
	assert.Equal(t, "t1", result.Candidates[1].EntityAID)
	assert.Equal(t, "t3", result.Candidates[1].EntityBID)
	assert.Equal(t, "t2", result.Candidates[2].EntityAID)
	assert.Equal(t, "t3", result.Candidates[2].EntityBID)
}

func TestDetectArtists(t *testing.T) {
	artists := []models.Artist{
		{ID: "a1", Name: "Beyoncé", NormalizedName: normalizers.NormalizePersonName("Beyoncé")},
		{ID: "a2", Name: "Beyonce", NormalizedName: normalizers.NormalizePersonName("Beyonce")},
		{ID: "a3", Name: "Jay Rock", NormalizedName: normalizers.NormalizePersonName("Jay Rock")},
	}
	d := newTestDetector(&fakeTrackStore{}, &fakeArtistStore{artists: artists}, &fakeAlbumStore{}, &fakeCreditStore{}, &fakeCandidateStore{})

	result, err := d.DetectArtists(context.Background(), Scope{EntityIDs: []string{"a1", "a2", "a3"}})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]
	assert.Equal(t, models.EntityKindArtist, c.EntityKind)
	assert.Equal(t, models.MatchTypeExact, c.MatchType)
	assert.Equal(t, "a1", c.EntityAID)
	assert.Equal(t, "a2", c.EntityBID)
}

func TestDetectArtists_RequiresIDList(t *testing.T) {
	d := newTestDetector(&fakeTrackStore{}, &fakeArtistStore{}, &fakeAlbumStore{}, &fakeCreditStore{}, &fakeCandidateStore{})

	_, err := d.DetectArtists(context.Background(), Scope{ArtistID: "a1"})
	require.Error(t, err)
}

func TestDetectCredits(t *testing.T) {
	credits := []models.Credit{
		{ID: "c1", TrackID: "t1", PersonName: "Metro Boomin", NormalizedName: "metro boomin", CreditType: models.CreditTypeProducer, Source: "genius_web", Confidence: 0.95},
		{ID: "c2", TrackID: "t1", PersonName: "Metro Boomin'", NormalizedName: "metro boomin", CreditType: models.CreditTypeProducer, Source: "spotify", Confidence: 0.8},
		{ID: "c3", TrackID: "t1", PersonName: "Metro Boomin", NormalizedName: "metro boomin", CreditType: models.CreditTypeWriter, Source: "genius_web", Confidence: 0.9},
	}
	d := newTestDetector(&fakeTrackStore{}, &fakeArtistStore{}, &fakeAlbumStore{}, &fakeCreditStore{credits: credits}, &fakeCandidateStore{})

	result, err := d.DetectCredits(context.Background(), "t1")
	require.NoError(t, err)

	// Same person with different credit types is not a duplicate
	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]
	assert.Equal(t, models.EntityKindCredit, c.EntityKind)
	assert.Equal(t, models.MatchTypeCreditDuplicate, c.MatchType)
	assert.Equal(t, models.ConfidenceCertain, c.Confidence)
	assert.Equal(t, "c1", c.EntityAID)
	assert.Equal(t, "c2", c.EntityBID)
}

func TestDetectAlbums(t *testing.T) {
	albums := []models.Album{
		{ID: "al1", Title: "Culture II", NormalizedTitle: normalizers.NormalizeTitle("Culture II"), ArtistID: "artist-1"},
		{ID: "al2", Title: "Culture II", NormalizedTitle: normalizers.NormalizeTitle("Culture II"), ArtistID: "artist-1"},
	}
	d := newTestDetector(&fakeTrackStore{}, &fakeArtistStore{}, &fakeAlbumStore{albums: albums}, &fakeCreditStore{}, &fakeCandidateStore{})

	result, err := d.DetectAlbums(context.Background(), Scope{ArtistID: "artist-1"})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, models.EntityKindAlbum, result.Candidates[0].EntityKind)
	assert.Equal(t, models.MatchTypeExact, result.Candidates[0].MatchType)
}

func TestDetectTracksForArtists(t *testing.T) {
	tracks := []models.Track{
		makeTrack("t1", "DNA"),
		makeTrack("t2", "DNA."),
	}
	d := newTestDetector(&fakeTrackStore{tracks: tracks}, &fakeArtistStore{}, &fakeAlbumStore{}, &fakeCreditStore{}, &fakeCandidateStore{})

	result, err := d.DetectTracksForArtists(context.Background(), []string{"artist-1", "artist-2"})
	require.NoError(t, err)

	// Both scopes see the same fake store, so two identical pairs come back
	require.Len(t, result.Candidates, 2)
	assert.Empty(t, result.Skipped)

	_, err = d.DetectTracksForArtists(context.Background(), nil)
	require.Error(t, err)
}
