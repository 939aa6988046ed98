package file

import (
	"mime"
	"net/http"

	"bitwise74/tmpfile-api/app/errs"
	"bitwise74/tmpfile-api/internal"

	"github.com/gin-gonic/gin"
)

// FileDownload streams the stored object back with the original name and
// type. Expired files answer 410 even before the sweeper got to them.
func FileDownload(c *gin.Context, d *internal.Deps) {
	f, rc, err := d.Uploads.Fetch(c.Request.Context(), publicID(c.Param("id")))
	if err != nil {
		errs.Respond(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, f.Size, f.MimeType, rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("inline", map[string]string{"filename": f.OriginalName}),
	})
}
