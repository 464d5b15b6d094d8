// Package albums exposes album resolution over HTTP
package albums

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	artistrepo "github.com/Ramsey-B/chorus/internal/repositories/artist"
	trackrepo "github.com/Ramsey-B/chorus/internal/repositories/track"
	"github.com/Ramsey-B/chorus/internal/tracing"
	albumsvc "github.com/Ramsey-B/chorus/pkg/albums"
	"github.com/Ramsey-B/chorus/pkg/events"
	graphpkg "github.com/Ramsey-B/chorus/pkg/graph"
)

var validate = validator.New()

// Register registers album routes
func Register(g *echo.Group) {
	g.POST("/resolve", Resolve)
}

// ResolveRequest scopes an album resolution run to one artist
type ResolveRequest struct {
	ArtistID string `json:"artist_id" validate:"required"`
}

// Resolve groups the artist's tracks into albums
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "albums_handler.Resolve")
	defer span.End()

	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, artists, err := ectoinject.GetContext[*artistrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	artist, err := artists.Get(ctx, req.ArtistID)
	if err != nil {
		return err
	}

	ctx, tracks, err := ectoinject.GetContext[*trackrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	artistTracks, err := tracks.ListByArtist(ctx, artist.ID)
	if err != nil {
		return err
	}

	ctx, resolver, err := ectoinject.GetContext[*albumsvc.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := resolver.ResolveAlbums(ctx, artistTracks, artist)
	if err != nil {
		return err
	}

	// album.created notifications are best effort
	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil && len(result.CreatedIDs) > 0 {
		created := make(map[string]bool, len(result.CreatedIDs))
		for _, id := range result.CreatedIDs {
			created[id] = true
		}
		for i := range result.Albums {
			if created[result.Albums[i].ID] {
				_ = emitter.EmitAlbumCreated(ctx, &result.Albums[i])
			}
		}
	}
	if ctx, projector, err := ectoinject.GetContext[*graphpkg.Projector](ctx); err == nil {
		for i := range result.Albums {
			if err := projector.UpsertAlbum(ctx, &result.Albums[i]); err != nil {
				break
			}
		}
	}

	return c.JSON(http.StatusOK, result)
}
