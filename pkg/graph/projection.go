package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/pkg/models"
)

// Projector mirrors the canonical catalog into the graph database. Postgres
// stays the source of truth; the projection exists for neighborhood and
// lineage queries, so every write here is a MERGE and safe to replay.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a new catalog projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// UpsertArtist creates or updates an Artist node
func (p *Projector) UpsertArtist(ctx context.Context, artist *models.Artist) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.UpsertArtist")
	defer span.End()

	cypher := `
		MERGE (a:Artist {id: $id})
		SET a.name = $name,
			a.normalized_name = $normalized_name,
			a.status = $status,
			a.updated_at = $updated_at
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":              artist.ID,
			"name":            artist.Name,
			"normalized_name": artist.NormalizedName,
			"status":          string(artist.Status),
			"updated_at":      timestamp(artist.UpdatedAt),
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"artist_id": artist.ID,
		}).Error("Failed to project artist")
		return fmt.Errorf("failed to project artist: %w", err)
	}

	return nil
}

// UpsertTrack creates or updates a Track node plus its PERFORMED edge from
// the artist and, when the track has an album, its APPEARS_ON edge
func (p *Projector) UpsertTrack(ctx context.Context, track *models.Track) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.UpsertTrack")
	defer span.End()

	cypher := `
		MERGE (t:Track {id: $id})
		SET t.title = $title,
			t.normalized_title = $normalized_title,
			t.status = $status,
			t.updated_at = $updated_at
		MERGE (a:Artist {id: $artist_id})
		MERGE (a)-[:PERFORMED]->(t)
	`
	params := map[string]any{
		"id":               track.ID,
		"title":            track.Title,
		"normalized_title": track.NormalizedTitle,
		"status":           string(track.Status),
		"updated_at":       timestamp(track.UpdatedAt),
		"artist_id":        track.ArtistID,
	}

	if track.AlbumID != nil {
		cypher += `
		MERGE (al:Album {id: $album_id})
		MERGE (t)-[:APPEARS_ON]->(al)
		`
		params["album_id"] = *track.AlbumID
	}

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"track_id": track.ID,
		}).Error("Failed to project track")
		return fmt.Errorf("failed to project track: %w", err)
	}

	return nil
}

// UpsertAlbum creates or updates an Album node and its edge from the artist
func (p *Projector) UpsertAlbum(ctx context.Context, album *models.Album) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.UpsertAlbum")
	defer span.End()

	cypher := `
		MERGE (al:Album {id: $id})
		SET al.title = $title,
			al.album_type = $album_type,
			al.track_count = $track_count,
			al.status = $status,
			al.updated_at = $updated_at
		MERGE (a:Artist {id: $artist_id})
		MERGE (a)-[:RELEASED]->(al)
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":          album.ID,
			"title":       album.Title,
			"album_type":  string(album.AlbumType),
			"track_count": album.TrackCount,
			"status":      string(album.Status),
			"updated_at":  timestamp(album.UpdatedAt),
			"artist_id":   album.ArtistID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"album_id": album.ID,
		}).Error("Failed to project album")
		return fmt.Errorf("failed to project album: %w", err)
	}

	return nil
}

// RecordMerge marks the loser node tombstoned and draws a MERGED_INTO edge
// to the winner, preserving merge lineage for audit queries
func (p *Projector) RecordMerge(ctx context.Context, kind models.EntityKind, winnerID, loserID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.RecordMerge")
	defer span.End()

	label := labelFor(kind)
	cypher := fmt.Sprintf(`
		MERGE (w:%s {id: $winner_id})
		MERGE (l:%s {id: $loser_id})
		SET l.status = 'tombstoned',
			l.merged_into = $winner_id
		MERGE (l)-[r:MERGED_INTO]->(w)
		SET r.merged_at = $merged_at
	`, label, label)

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"winner_id": winnerID,
			"loser_id":  loserID,
			"merged_at": timestamp(time.Now().UTC()),
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"winner_id": winnerID,
			"loser_id":  loserID,
		}).Error("Failed to project merge")
		return fmt.Errorf("failed to project merge: %w", err)
	}

	return nil
}

func labelFor(kind models.EntityKind) string {
	switch kind {
	case models.EntityKindArtist:
		return "Artist"
	case models.EntityKindAlbum:
		return "Album"
	default:
		return "Track"
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// sanitizeLabel ensures a label is safe for Cypher
func sanitizeLabel(label string) string {
	result := ""
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result += string(c)
		}
	}
	if result == "" {
		return "Track"
	}
	return result
}
