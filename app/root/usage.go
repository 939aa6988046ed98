package root

import (
	"net/http"

	"bitwise74/tmpfile-api/app/errs"
	"bitwise74/tmpfile-api/internal"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

// Usage reports bucket usage. Walking the bucket is expensive, the route is
// cached in front of this handler.
func Usage(c *gin.Context, d *internal.Deps) {
	u, err := d.Uploads.Usage(c.Request.Context())
	if err != nil {
		errs.Respond(c, err)
		return
	}

	var percent float64
	if u.Max > 0 {
		percent = float64(u.Used) / float64(u.Max) * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"used":      u.Used,
		"max":       u.Max,
		"usedHuman": humanize.IBytes(uint64(u.Used)),
		"maxHuman":  humanize.IBytes(uint64(u.Max)),
		"percent":   percent,
	})
}
