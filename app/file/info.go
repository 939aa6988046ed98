package file

import (
	"errors"
	"net/http"

	"bitwise74/tmpfile-api/app/errs"
	"bitwise74/tmpfile-api/internal"
	"bitwise74/tmpfile-api/internal/service"

	"github.com/gin-gonic/gin"
)

// FileInfo returns public metadata. Unknown IDs get a second chance as a
// storage key.
func FileInfo(c *gin.Context, d *internal.Deps) {
	raw := c.Param("id")
	ctx := c.Request.Context()

	f, err := d.Uploads.Info(ctx, publicID(raw))
	if errors.Is(err, service.ErrNotFound) {
		f, err = d.Uploads.InfoByStorageKey(ctx, raw)
	}
	if err != nil {
		errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, infoResponse{
		ID:            f.ShortID,
		URL:           fileURL(d.Settings.BaseURL, f),
		OriginalName:  f.OriginalName,
		MimeType:      f.MimeType,
		Size:          f.Size,
		IsTemporary:   f.IsTemporary,
		ExpiresAt:     f.ExpiresAt,
		DownloadCount: f.DownloadCount,
		CreatedAt:     f.CreatedAt,
	})
}
