package credits

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
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeCreditStore struct {
	stored   []models.Credit
	replaced []models.Credit
}

func (f *fakeCreditStore) ListByTrack(ctx context.Context, trackID string) ([]models.Credit, error) {
	return f.stored, nil
}

func (f *fakeCreditStore) ReplaceForTrack(ctx context.Context, trackID string, credits []models.Credit) ([]models.Credit, error) {
	f.replaced = credits
	return credits, nil
}

func testPriorities() map[string]int {
	return ParseSourcePriorities([]string{"genius_web:1", "rapedia:1", "genius_api:2", "spotify:3", "discogs:4", "manual:6"})
}

func newTestConsolidator(store *fakeCreditStore) *Consolidator {
	return NewConsolidator(store, Config{MinCreditConfidence: 0.7, SourcePriorities: testPriorities()}, testLogger())
}

func testTrack(featuring ...string) *models.Track {
	t := &models.Track{ID: "t1", Title: "Test Track", ArtistID: "artist-1", Status: models.EntityStatusActive}
	if len(featuring) > 0 {
		t.Featuring, _ = json.Marshal(featuring)
	}
	return t
}

func strPtr(s string) *string { return &s }

func findCredit(credits []models.Credit, normalizedName string, creditType models.CreditType) *models.Credit {
	for i := range credits {
		if credits[i].NormalizedName == normalizedName && credits[i].CreditType == creditType {
			return &credits[i]
		}
	}
	return nil
}

func TestResolveRole(t *testing.T) {
	tests := []struct {
		roleText string
		want     models.CreditType
	}{
		{"Producer", models.CreditTypeProducer},
		{"produced by", models.CreditTypeProducer},
		{"Co-Producer", models.CreditTypeCoProducer},
		{"co-produced by", models.CreditTypeCoProducer},
		{"Executive Producer", models.CreditTypeExecutiveProducer},
		{"Vocal Producer", models.CreditTypeVocalProducer},
		{"Mixing Engineer", models.CreditTypeMixingEngineer},
		{"Mastered by", models.CreditTypeMasteringEngineer},
		{"Recorded At Chalice", models.CreditTypeRecordingEngineer},
		{"Engineer", models.CreditTypeEngineer},
		{"Songwriter", models.CreditTypeWriter},
		{"Written by", models.CreditTypeWriter},
		{"Composer", models.CreditTypeComposer},
		{"Lyrics", models.CreditTypeLyricist},
		{"featuring", models.CreditTypeFeaturedArtist},
		{"Background Vocals", models.CreditTypeBackgroundVocals},
		{"Vocals", models.CreditTypeVocalist},
		{"Bass Guitar", models.CreditTypeInstrumentalist},
		{"Samples 'Maria' by...", models.CreditTypeSampleSource},
		{"beats", models.CreditTypeProducer},
		{"prod", models.CreditTypeProducer},
		{"chauffeur", models.CreditTypeOther},
		{"", models.CreditTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.roleText, func(t *testing.T) {
			got, _ := ResolveRole(tt.roleText)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRole_ExactBonus(t *testing.T) {
	_, exact := ResolveRole("Producer")
	assert.True(t, exact)

	_, exact = ResolveRole("Producer for the label")
	assert.False(t, exact)
}

func TestCleanRoleText(t *testing.T) {
	assert.Equal(t, "Producer", CleanRoleText("  Producer (uncredited) "))
	assert.Equal(t, "vocals", CleanRoleText("additional vocals"))
	assert.Equal(t, "Mixing", CleanRoleText("Mixing:"))
}

func TestConsolidateCredits_GroupsAndKeepsMaxConfidence(t *testing.T) {
	store := &fakeCreditStore{}
	c := newTestConsolidator(store)

	entries := []models.RawCreditEntry{
		{PersonName: "Metro Boomin", RoleText: "Producer", Source: "genius_web"},
		{PersonName: "Metro Boomin'", RoleText: "prod.", Source: "spotify"},
	}

	result, err := c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)

	// Same normalized name and type collapse to one credit; the spread of
	// sources earns the corroboration bonus on top of the best seed
	require.Len(t, result.Credits, 1)
	credit := result.Credits[0]
	assert.Equal(t, "metro boomin", credit.NormalizedName)
	assert.Equal(t, models.CreditTypeProducer, credit.CreditType)
	assert.Equal(t, models.CreditCategoryProduction, credit.CreditCategory)
	// genius_web rank 1 with exact role text seeds 1.0, capped after bonus
	assert.InDelta(t, 1.0, credit.Confidence, 0.001)
	assert.Equal(t, result.Credits, store.replaced)
}

func TestConsolidateCredits_SingleSourceNoBonus(t *testing.T) {
	store := &fakeCreditStore{}
	c := newTestConsolidator(store)

	entries := []models.RawCreditEntry{
		{PersonName: "Mike Dean", RoleText: "Mixing Engineer", Source: "discogs"},
	}

	result, err := c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)

	require.Len(t, result.Credits, 1)
	// discogs rank 4 seeds 0.80, plus the exact-role bonus
	assert.InDelta(t, 0.85, result.Credits[0].Confidence, 0.001)
}

func TestConsolidateCredits_DropsBelowThreshold(t *testing.T) {
	store := &fakeCreditStore{}
	c := newTestConsolidator(store)

	entries := []models.RawCreditEntry{
		{PersonName: "Somebody", RoleText: "chauffeur services", Source: "manual"},
	}

	result, err := c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)

	// manual rank 6 seeds 0.70 but the inexact role gets no bonus; still at
	// the threshold so it survives. Lower it via explicit confidence.
	require.Len(t, result.Credits, 1)

	entries[0].Confidence = 0.4
	result, err = c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)
	assert.Empty(t, result.Credits)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "confidence below threshold", result.Skipped[0].Reason)
}

func TestConsolidateCredits_FeaturingBecomesCredits(t *testing.T) {
	store := &fakeCreditStore{}
	c := newTestConsolidator(store)

	result, err := c.ConsolidateCredits(context.Background(), testTrack("Drake", "Young Thug"), nil)
	require.NoError(t, err)

	require.Len(t, result.Credits, 2)
	drake := findCredit(result.Credits, "drake", models.CreditTypeFeaturedArtist)
	require.NotNil(t, drake)
	assert.Equal(t, models.CreditCategoryPerformance, drake.CreditCategory)
	assert.Equal(t, featuringSource, drake.Source)
}

func TestConsolidateCredits_HiddenProducerPass(t *testing.T) {
	store := &fakeCreditStore{}
	c := newTestConsolidator(store)

	entries := []models.RawCreditEntry{
		{PersonName: "Zaytoven", RoleText: "piano, also on the beat", Source: "genius_web"},
	}

	result, err := c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)

	// The instrumentalist credit survives and a secondary producer credit
	// is synthesized from the production language in the raw text
	instrumentalist := findCredit(result.Credits, "zaytoven", models.CreditTypeInstrumentalist)
	require.NotNil(t, instrumentalist)
	producer := findCredit(result.Credits, "zaytoven", models.CreditTypeProducer)
	require.NotNil(t, producer)
	assert.InDelta(t, hiddenProducerScore, producer.Confidence, 0.001)
}

func TestConsolidateCredits_CarriesDetail(t *testing.T) {
	store := &fakeCreditStore{}
	c := newTestConsolidator(store)

	detail := "keys on the outro"
	entries := []models.RawCreditEntry{
		{PersonName: "Mike Dean", RoleText: "Keyboards", Source: "genius_web", Detail: &detail},
		{PersonName: "Sounwave", RoleText: "Producer", Source: "genius_web", Detail: strPtr("")},
	}

	result, err := c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)

	dean := findCredit(result.Credits, "mike dean", models.CreditTypeInstrumentalist)
	require.NotNil(t, dean)
	require.NotNil(t, dean.Detail)
	assert.Equal(t, "keys on the outro", *dean.Detail)

	// an empty detail stays nil instead of pointing at an empty string
	sounwave := findCredit(result.Credits, "sounwave", models.CreditTypeProducer)
	require.NotNil(t, sounwave)
	assert.Nil(t, sounwave.Detail)
}

func TestConsolidateCredits_CoProducerKeepsSecondaryProducer(t *testing.T) {
	store := &fakeCreditStore{}
	c := newTestConsolidator(store)

	entries := []models.RawCreditEntry{
		{PersonName: "Buddah Bless", RoleText: "co-produced by", Source: "genius_web"},
	}

	result, err := c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)

	// The co-producer credit stands, and the production language in the raw
	// text still earns a lower-confidence producer credit alongside it
	coProducer := findCredit(result.Credits, "buddah bless", models.CreditTypeCoProducer)
	require.NotNil(t, coProducer)
	assert.InDelta(t, 0.95, coProducer.Confidence, 0.001)

	producer := findCredit(result.Credits, "buddah bless", models.CreditTypeProducer)
	require.NotNil(t, producer)
	assert.InDelta(t, hiddenProducerScore, producer.Confidence, 0.001)
}

func TestConsolidateCredits_SkipsEmptyNames(t *testing.T) {
	store := &fakeCreditStore{}
	c := newTestConsolidator(store)

	entries := []models.RawCreditEntry{
		{PersonName: "   ", RoleText: "Producer", Source: "genius_web"},
		{PersonName: "Sounwave", RoleText: "Producer", Source: "genius_web"},
	}

	result, err := c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)

	require.Len(t, result.Credits, 1)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "empty person name", result.Skipped[0].Reason)
}

func TestConsolidateCredits_OrderBySourceThenConfidence(t *testing.T) {
	store := &fakeCreditStore{}
	c := newTestConsolidator(store)

	entries := []models.RawCreditEntry{
		{PersonName: "Discogs Person", RoleText: "Engineer", Source: "discogs", Confidence: 0.99},
		{PersonName: "Genius Person", RoleText: "Producer", Source: "genius_web", Confidence: 0.8},
		{PersonName: "Genius Writer", RoleText: "Writer", Source: "genius_web", Confidence: 0.95},
	}

	result, err := c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)

	require.Len(t, result.Credits, 3)
	// genius_web (rank 1) rows lead despite the higher discogs confidence,
	// and within a source higher confidence comes first
	assert.Equal(t, "Genius Writer", result.Credits[0].PersonName)
	assert.Equal(t, "Genius Person", result.Credits[1].PersonName)
	assert.Equal(t, "Discogs Person", result.Credits[2].PersonName)
}

func TestConsolidateCredits_MergesStoredWithNew(t *testing.T) {
	store := &fakeCreditStore{
		stored: []models.Credit{
			{ID: "c1", TrackID: "t1", PersonName: "Sounwave", NormalizedName: "sounwave", CreditType: models.CreditTypeProducer, CreditCategory: models.CreditCategoryProduction, Source: "spotify", Confidence: 0.85},
		},
	}
	c := newTestConsolidator(store)

	entries := []models.RawCreditEntry{
		{PersonName: "Sounwave", RoleText: "Producer", Source: "genius_web"},
	}

	result, err := c.ConsolidateCredits(context.Background(), testTrack(), entries)
	require.NoError(t, err)

	require.Len(t, result.Credits, 1)
	assert.InDelta(t, 1.0, result.Credits[0].Confidence, 0.001)
}

func TestParseSourcePriorities(t *testing.T) {
	priorities := ParseSourcePriorities([]string{"genius_web:1", "bogus", "spotify:3", "bad:x"})
	assert.Equal(t, map[string]int{"genius_web": 1, "spotify": 3}, priorities)
}
