// Package admin contains the endpoints behind the admin key
package admin

import (
	"net/http"

	"bitwise74/tmpfile-api/app/errs"
	"bitwise74/tmpfile-api/internal"
	"bitwise74/tmpfile-api/internal/service"

	"github.com/gin-gonic/gin"
)

type listQuery struct {
	IsTemporary *bool  `form:"isTemporary"`
	IsDuplicate *bool  `form:"isDuplicate"`
	Expired     *bool  `form:"expired"`
	MinSize     *int64 `form:"minSize" binding:"omitempty,min=0"`
	MaxSize     *int64 `form:"maxSize" binding:"omitempty,min=0"`
	Page        int    `form:"page" binding:"omitempty,min=1"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=100"`
	SortBy      string `form:"sortBy" binding:"omitempty,oneof=createdAt size downloadCount expiresAt"`
	SortOrder   string `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
}

// FileList pages through every record, expired ones included
func FileList(c *gin.Context, d *internal.Deps) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		errs.BadRequest(c, "Invalid query parameters")
		return
	}

	page, err := d.Records.List(c.Request.Context(), service.ListFilter{
		IsTemporary: q.IsTemporary,
		IsDuplicate: q.IsDuplicate,
		Expired:     q.Expired,
		MinSize:     q.MinSize,
		MaxSize:     q.MaxSize,
		Page:        q.Page,
		Limit:       q.Limit,
		SortBy:      q.SortBy,
		Ascending:   q.SortOrder == "asc",
	})
	if err != nil {
		errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    page,
	})
}

// FileDelete removes the record. The object goes too once nothing else
// references it.
func FileDelete(c *gin.Context, d *internal.Deps) {
	if err := d.Uploads.Delete(c.Request.Context(), c.Param("id")); err != nil {
		errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "File deleted",
	})
}

func FileExpire(c *gin.Context, d *internal.Deps) {
	if err := d.Uploads.ForceExpire(c.Request.Context(), c.Param("id")); err != nil {
		errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "File expired",
	})
}
