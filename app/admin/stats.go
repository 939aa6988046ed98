package admin

import (
	"net/http"

	"bitwise74/tmpfile-api/app/errs"
	"bitwise74/tmpfile-api/internal"

	"github.com/gin-gonic/gin"
)

type statsQuery struct {
	Days  int `form:"days" binding:"omitempty,min=1,max=365"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func bindStats(c *gin.Context) (statsQuery, bool) {
	q := statsQuery{Days: 30, Limit: 10}
	if err := c.ShouldBindQuery(&q); err != nil {
		errs.BadRequest(c, "Invalid query parameters")
		return q, false
	}

	return q, true
}

func reply(c *gin.Context, data any, err error) {
	if err != nil {
		errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func StatsOverview(c *gin.Context, d *internal.Deps) {
	data, err := d.Records.Overview(c.Request.Context())
	reply(c, data, err)
}

func StatsUploads(c *gin.Context, d *internal.Deps) {
	q, ok := bindStats(c)
	if !ok {
		return
	}

	data, err := d.Records.UploadsPerDay(c.Request.Context(), q.Days)
	reply(c, data, err)
}

func StatsDownloads(c *gin.Context, d *internal.Deps) {
	q, ok := bindStats(c)
	if !ok {
		return
	}

	data, err := d.Records.DownloadsPerDay(c.Request.Context(), q.Days)
	reply(c, data, err)
}

func StatsTop(c *gin.Context, d *internal.Deps) {
	q, ok := bindStats(c)
	if !ok {
		return
	}

	data, err := d.Records.Top(c.Request.Context(), q.Limit)
	reply(c, data, err)
}
