// Package albums groups loose tracks into canonical albums and synthesizes
// albums for tracks that never declared one
package albums

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/pkg/matching"
	"github.com/Ramsey-B/chorus/pkg/models"
	"github.com/Ramsey-B/chorus/pkg/normalizers"
)

// releaseDateLayouts are tried in order when parsing provider dates
var releaseDateLayouts = []string{"2006-01-02", "2006", "02/01/2006", "01/02/2006"}

// Title markers consulted at fixed points in the classification order
var (
	singleMarker      = regexp.MustCompile(`(?i)\bsingle\b`)
	epMarker          = regexp.MustCompile(`(?i)\be\.?p\.?\b`)
	mixtapeMarker     = regexp.MustCompile(`(?i)\bmixtape\b`)
	compilationMarker = regexp.MustCompile(`(?i)\b(?:compilation|anthology|collection|greatest\s+hits|best\s+of)\b`)
	liveMarker        = regexp.MustCompile(`(?i)\blive\b`)
)

const (
	singleTrackCeiling = 2
	epTrackCeiling     = 6
)

// Config holds album resolution tuning
type Config struct {
	AlbumTrackFloor         int
	HighSimilarityThreshold float64
}

type albumStore interface {
	GetByNormalizedTitle(ctx context.Context, artistID string, normalizedTitle string) (*models.Album, error)
	Create(ctx context.Context, album *models.Album) (*models.Album, error)
	UpdateAggregates(ctx context.Context, id string, trackCount int, totalDuration int, releaseDate *string, releaseYear *int) error
}

type trackStore interface {
	SetAlbumIfUnset(ctx context.Context, trackID string, albumID string) error
}

// Resolver builds canonical albums from raw album strings. Re-running over
// the same catalog is a no-op: existing albums are found by normalized title
// and tracks are only re-pointed while their album reference is nil.
type Resolver struct {
	albums albumStore
	tracks trackStore
	scorer *matching.Scorer
	cfg    Config
	logger ectologger.Logger
}

// NewResolver creates an album resolver
func NewResolver(albums albumStore, tracks trackStore, cfg Config, logger ectologger.Logger) *Resolver {
	if cfg.AlbumTrackFloor < 1 {
		cfg.AlbumTrackFloor = 4
	}
	if cfg.HighSimilarityThreshold <= 0 {
		cfg.HighSimilarityThreshold = 0.90
	}
	return &Resolver{
		albums: albums,
		tracks: tracks,
		scorer: matching.NewScorer(),
		cfg:    cfg,
		logger: logger,
	}
}

// ResolveAlbums groups one artist's tracks by raw album title, creates or
// reuses canonical albums, and synthesizes albums for orphans
func (r *Resolver) ResolveAlbums(ctx context.Context, tracks []models.Track, artist *models.Artist) (*models.ResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "albums.Resolver.ResolveAlbums")
	defer span.End()

	result := &models.ResolutionResult{}

	// one cache per run; raw album spellings repeat across a catalog
	cache := normalizers.NewCache()

	groups := make(map[string][]models.Track)
	var orphans []models.Track
	for _, t := range tracks {
		if t.Status != models.EntityStatusActive {
			result.Skipped = append(result.Skipped, models.SkippedItem{EntityID: t.ID, Reason: "track not active"})
			continue
		}
		if t.RawAlbumTitle == nil || strings.TrimSpace(*t.RawAlbumTitle) == "" {
			orphans = append(orphans, t)
			continue
		}
		key := cache.Title(*t.RawAlbumTitle)
		if key == "" {
			orphans = append(orphans, t)
			continue
		}
		groups[key] = append(groups[key], t)
	}

	groups = r.mergeSimilarGroups(groups)

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := groups[key]
		title := r.canonicalTitle(group)
		albumType := r.classifyType(title, len(group))
		r.materialize(ctx, result, artist, title, albumType, group)
	}

	r.resolveOrphans(ctx, result, artist, orphans)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"artist_id": artist.ID,
		"tracks":    len(tracks),
		"albums":    len(result.Albums),
		"created":   result.Created,
		"skipped":   len(result.Skipped),
	}).Info("Album resolution complete")
	return result, nil
}

// mergeSimilarGroups folds near-identical normalized titles into one group so
// spelling variants of the same album do not split into separate records
func (r *Resolver) mergeSimilarGroups(groups map[string][]models.Track) map[string][]models.Track {
	if len(groups) < 2 {
		return groups
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make(map[string][]models.Track, len(groups))
	absorbed := make(map[string]bool, len(groups))
	for i, key := range keys {
		if absorbed[key] {
			continue
		}
		family := groups[key]
		for _, other := range keys[i+1:] {
			if absorbed[other] {
				continue
			}
			if r.keySimilarity(key, other) < r.cfg.HighSimilarityThreshold {
				continue
			}
			family = append(family, groups[other]...)
			absorbed[other] = true
		}
		merged[key] = family
	}
	return merged
}

// keySimilarity compares two normalized group keys. Jaro-Winkler backs up the
// edit-distance score because short numbered variants ("culture ii" against
// "culture 2") lose too much per differing character under edit distance.
func (r *Resolver) keySimilarity(a, b string) float64 {
	score := r.scorer.NormalizedSimilarity(a, b)
	if jw := r.scorer.JaroWinkler(a, b); jw > score {
		score = jw
	}
	return score
}

// canonicalTitle picks the display title for a group: the most frequent raw
// spelling, then the cleanest member of its near-identical family
func (r *Resolver) canonicalTitle(group []models.Track) string {
	counts := make(map[string]int)
	for _, t := range group {
		counts[strings.TrimSpace(*t.RawAlbumTitle)]++
	}

	titles := make([]string, 0, len(counts))
	for title := range counts {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	frequent := titles[0]
	for _, title := range titles {
		if counts[title] > counts[frequent] {
			frequent = title
		}
	}

	best := frequent
	for _, title := range titles {
		if title == best {
			continue
		}
		if r.scorer.TitleSimilarity(title, frequent) < r.cfg.HighSimilarityThreshold {
			continue
		}
		if cleanerTitle(title, best, counts) {
			best = title
		}
	}
	return best
}

// cleanerTitle prefers the more frequent spelling, then the shorter one, then
// fewer bracket characters, then lexicographic order
func cleanerTitle(a, b string, counts map[string]int) bool {
	if counts[a] != counts[b] {
		return counts[a] > counts[b]
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	if ba, bb := bracketChars(a), bracketChars(b); ba != bb {
		return ba < bb
	}
	return a < b
}

func bracketChars(s string) int {
	return strings.Count(s, "(") + strings.Count(s, ")") + strings.Count(s, "[") + strings.Count(s, "]")
}

// classifyType walks a fixed priority: tiny groups read as singles and small
// ones as EPs before any named format in the title gets a say, then track
// count settles the rest
func (r *Resolver) classifyType(title string, trackCount int) models.AlbumType {
	switch {
	case trackCount <= singleTrackCeiling || singleMarker.MatchString(title):
		return models.AlbumTypeSingle
	case epMarker.MatchString(title) || trackCount <= epTrackCeiling:
		return models.AlbumTypeEP
	case mixtapeMarker.MatchString(title):
		return models.AlbumTypeMixtape
	case compilationMarker.MatchString(title):
		return models.AlbumTypeCompilation
	case liveMarker.MatchString(title):
		return models.AlbumTypeLive
	case trackCount >= r.cfg.AlbumTrackFloor:
		return models.AlbumTypeAlbum
	case trackCount <= epTrackCeiling:
		return models.AlbumTypeEP
	default:
		return models.AlbumTypeAlbum
	}
}

// materialize finds or creates the album and points the group's tracks at it
func (r *Resolver) materialize(ctx context.Context, result *models.ResolutionResult, artist *models.Artist, title string, albumType models.AlbumType, group []models.Track) {
	normalized := normalizers.NormalizeTitle(title)
	releaseDate, releaseYear := earliestRelease(group)
	totalDuration := 0
	for _, t := range group {
		if t.DurationSeconds != nil {
			totalDuration += *t.DurationSeconds
		}
	}

	album, err := r.albums.GetByNormalizedTitle(ctx, artist.ID, normalized)
	if err != nil {
		r.skipGroup(result, group, err.Error())
		return
	}
	if album == nil {
		album, err = r.albums.Create(ctx, &models.Album{
			Title:           title,
			NormalizedTitle: normalized,
			ArtistID:        artist.ID,
			AlbumType:       albumType,
			ReleaseDate:     releaseDate,
			ReleaseYear:     releaseYear,
			TrackCount:      len(group),
			TotalDuration:   totalDuration,
		})
		if err != nil {
			r.skipGroup(result, group, err.Error())
			return
		}
		result.Created++
		result.CreatedIDs = append(result.CreatedIDs, album.ID)
	} else if err := r.albums.UpdateAggregates(ctx, album.ID, len(group), totalDuration, releaseDate, releaseYear); err != nil {
		r.skipGroup(result, group, err.Error())
		return
	}

	for _, t := range group {
		if err := r.tracks.SetAlbumIfUnset(ctx, t.ID, album.ID); err != nil {
			result.Skipped = append(result.Skipped, models.SkippedItem{EntityID: t.ID, Reason: err.Error()})
		}
	}

	result.Albums = append(result.Albums, *album)
}

// resolveOrphans synthesizes albums for tracks that never declared one.
// Years with three or more orphans become an "{Artist} - Singles {year}"
// compilation; a
// single leftover becomes its own single; everything else lands in one
// catch-all collection.
func (r *Resolver) resolveOrphans(ctx context.Context, result *models.ResolutionResult, artist *models.Artist, orphans []models.Track) {
	if len(orphans) == 0 {
		return
	}

	byYear := make(map[int][]models.Track)
	var leftovers []models.Track
	for _, t := range orphans {
		if year, ok := releaseYearOf(&t); ok {
			byYear[year] = append(byYear[year], t)
			continue
		}
		leftovers = append(leftovers, t)
	}

	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)

	for _, year := range years {
		group := byYear[year]
		if len(group) < 3 {
			leftovers = append(leftovers, group...)
			continue
		}
		r.materialize(ctx, result, artist, fmt.Sprintf("%s - Singles %d", artist.Name, year), models.AlbumTypeCompilation, group)
	}

	if len(leftovers) == 0 {
		return
	}
	sort.Slice(leftovers, func(i, j int) bool { return leftovers[i].ID < leftovers[j].ID })

	if len(leftovers) == 1 {
		t := leftovers[0]
		r.materialize(ctx, result, artist, fmt.Sprintf("%s - Single", t.Title), models.AlbumTypeSingle, leftovers)
		return
	}
	r.materialize(ctx, result, artist, fmt.Sprintf("%s - Singles Collection", artist.Name), models.AlbumTypeCompilation, leftovers)
}

func (r *Resolver) skipGroup(result *models.ResolutionResult, group []models.Track, reason string) {
	for _, t := range group {
		result.Skipped = append(result.Skipped, models.SkippedItem{EntityID: t.ID, Reason: reason})
	}
}

// earliestRelease returns the earliest parseable release date in the group
// formatted as 2006-01-02, plus its year
func earliestRelease(group []models.Track) (*string, *int) {
	var earliest *time.Time
	for _, t := range group {
		parsed, ok := parseReleaseDate(t.ReleaseDate)
		if !ok {
			continue
		}
		if earliest == nil || parsed.Before(*earliest) {
			earliest = &parsed
		}
	}
	if earliest == nil {
		return nil, nil
	}

	date := earliest.Format("2006-01-02")
	year := earliest.Year()
	return &date, &year
}

func releaseYearOf(t *models.Track) (int, bool) {
	parsed, ok := parseReleaseDate(t.ReleaseDate)
	if !ok {
		return 0, false
	}
	return parsed.Year(), true
}

func parseReleaseDate(raw *string) (time.Time, bool) {
	if raw == nil {
		return time.Time{}, false
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range releaseDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
