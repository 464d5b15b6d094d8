package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/chorus/pkg/kafka"
	"github.com/Ramsey-B/chorus/pkg/models"
	"github.com/Ramsey-B/chorus/pkg/normalizers"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeArtistStore struct {
	artists map[string]*models.Artist
	err     error
}

func (f *fakeArtistStore) Upsert(ctx context.Context, req models.CreateArtistRequest) (*models.Artist, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := normalizers.NormalizePersonName(req.Name)
	if existing, ok := f.artists[key]; ok {
		return existing, nil
	}
	artist := &models.Artist{
		ID:             "artist-" + key,
		Name:           req.Name,
		NormalizedName: key,
		ExternalIDs:    req.ExternalIDs,
		Status:         models.EntityStatusActive,
	}
	if f.artists == nil {
		f.artists = map[string]*models.Artist{}
	}
	f.artists[key] = artist
	return artist, nil
}

type fakeTrackStore struct {
	tracks  map[string]*models.Track
	created []models.CreateTrackRequest
}

func trackKey(artistID, normalizedTitle string) string {
	return artistID + "|" + normalizedTitle
}

func (f *fakeTrackStore) GetByNormalizedTitle(ctx context.Context, artistID string, normalizedTitle string) (*models.Track, error) {
	return f.tracks[trackKey(artistID, normalizedTitle)], nil
}

func (f *fakeTrackStore) Create(ctx context.Context, req models.CreateTrackRequest) (*models.Track, error) {
	f.created = append(f.created, req)
	track := &models.Track{
		ID:              "track-" + req.Title,
		Title:           req.Title,
		NormalizedTitle: normalizers.NormalizeTitle(req.Title),
		ArtistID:        req.ArtistID,
		Status:          models.EntityStatusActive,
	}
	if f.tracks == nil {
		f.tracks = map[string]*models.Track{}
	}
	f.tracks[trackKey(req.ArtistID, track.NormalizedTitle)] = track
	return track, nil
}

type fakeConsolidator struct {
	entries []models.RawCreditEntry
	trackID string
	err     error
}

func (f *fakeConsolidator) ConsolidateCredits(ctx context.Context, track *models.Track, rawEntries []models.RawCreditEntry) (*models.ConsolidationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.entries = rawEntries
	f.trackID = track.ID
	return &models.ConsolidationResult{}, nil
}

func intakeMessage(payload *kafka.TrackIntakeMessage) *kafka.IncomingMessage {
	return &kafka.IncomingMessage{Track: payload}
}

func TestHandleMessage_CreatesArtistAndTrack(t *testing.T) {
	artists := &fakeArtistStore{}
	tracks := &fakeTrackStore{}
	consolidator := &fakeConsolidator{}
	p := NewProcessor(artists, tracks, consolidator, testLogger())

	err := p.HandleMessage(context.Background(), intakeMessage(&kafka.TrackIntakeMessage{
		Type:       kafka.MessageTypeTrack,
		Source:     "genius_web",
		ArtistName: "Kendrick Lamar",
		Title:      "Money Trees",
		Credits: []models.RawCreditEntry{
			{PersonName: "DJ Dahi", RoleText: "Producer"},
		},
	}))
	require.NoError(t, err)

	require.Len(t, tracks.created, 1)
	assert.Equal(t, "Money Trees", tracks.created[0].Title)
	assert.Equal(t, "track-Money Trees", consolidator.trackID)
	// Entries without an explicit source inherit the message source
	require.Len(t, consolidator.entries, 1)
	assert.Equal(t, "genius_web", consolidator.entries[0].Source)
}

func TestHandleMessage_ReusesExistingTrack(t *testing.T) {
	artists := &fakeArtistStore{}
	tracks := &fakeTrackStore{}
	consolidator := &fakeConsolidator{}
	p := NewProcessor(artists, tracks, consolidator, testLogger())

	first := intakeMessage(&kafka.TrackIntakeMessage{
		Source: "spotify", ArtistName: "Travis Scott", Title: "SICKO MODE",
	})
	second := intakeMessage(&kafka.TrackIntakeMessage{
		Source: "genius_web", ArtistName: "Travis Scott", Title: "Sicko Mode",
	})

	require.NoError(t, p.HandleMessage(context.Background(), first))
	require.NoError(t, p.HandleMessage(context.Background(), second))

	// Same normalized title, same artist: only one track created
	assert.Len(t, tracks.created, 1)
}

func TestHandleMessage_LiftsFeaturingFromTitle(t *testing.T) {
	artists := &fakeArtistStore{}
	tracks := &fakeTrackStore{}
	p := NewProcessor(artists, tracks, &fakeConsolidator{}, testLogger())

	err := p.HandleMessage(context.Background(), intakeMessage(&kafka.TrackIntakeMessage{
		Source:     "genius_web",
		ArtistName: "Travis Scott",
		Title:      "SICKO MODE (feat. Drake)",
		Featuring:  []string{"Drake", "Swae Lee"},
	}))
	require.NoError(t, err)

	require.Len(t, tracks.created, 1)
	req := tracks.created[0]
	assert.Equal(t, "SICKO MODE", req.Title)
	// Declared and parsed featuring union without duplicates
	assert.Equal(t, []string{"Drake", "Swae Lee"}, req.Featuring)
}

func TestHandleMessage_FeaturingNeverContainsPrimaryArtist(t *testing.T) {
	artists := &fakeArtistStore{}
	tracks := &fakeTrackStore{}
	p := NewProcessor(artists, tracks, &fakeConsolidator{}, testLogger())

	err := p.HandleMessage(context.Background(), intakeMessage(&kafka.TrackIntakeMessage{
		Source:     "spotify",
		ArtistName: "Quavo",
		Title:      "Workin Me",
		Featuring:  []string{"Quavo", "Takeoff"},
	}))
	require.NoError(t, err)

	require.Len(t, tracks.created, 1)
	assert.Equal(t, []string{"Takeoff"}, tracks.created[0].Featuring)
}

func TestHandleMessage_ConsolidatorErrorPropagates(t *testing.T) {
	p := NewProcessor(&fakeArtistStore{}, &fakeTrackStore{}, &fakeConsolidator{err: errors.New("db down")}, testLogger())

	err := p.HandleMessage(context.Background(), intakeMessage(&kafka.TrackIntakeMessage{
		Source: "manual", ArtistName: "Future", Title: "Mask Off",
	}))
	assert.Error(t, err)
}

func TestTrackIntakeMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     kafka.TrackIntakeMessage
		wantErr bool
	}{
		{"valid", kafka.TrackIntakeMessage{Type: kafka.MessageTypeTrack, Source: "spotify", ArtistName: "a", Title: "t"}, false},
		{"empty type allowed", kafka.TrackIntakeMessage{Source: "spotify", ArtistName: "a", Title: "t"}, false},
		{"wrong type", kafka.TrackIntakeMessage{Type: "catalog.album", Source: "spotify", ArtistName: "a", Title: "t"}, true},
		{"missing artist", kafka.TrackIntakeMessage{Source: "spotify", Title: "t"}, true},
		{"missing title", kafka.TrackIntakeMessage{Source: "spotify", ArtistName: "a"}, true},
		{"missing source", kafka.TrackIntakeMessage{ArtistName: "a", Title: "t"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
