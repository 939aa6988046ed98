package file

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"bitwise74/tmpfile-api/app/errs"
	"bitwise74/tmpfile-api/internal"
	"bitwise74/tmpfile-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxFieldSize = 64

// FileUpload streams the multipart "file" part straight into the upload
// pipeline. Form fields have to come before the file part, query
// parameters of the same name work as a fallback.
func FileUpload(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	mr, err := c.Request.MultipartReader()
	if err != nil {
		errs.BadRequest(c, "Expected a multipart/form-data body")
		return
	}

	isTemporary := c.Query("isTemporary")
	expiresIn := c.Query("expiresIn")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			var bodyCap *http.MaxBytesError
			if errors.As(err, &bodyCap) {
				errs.Respond(c, err)
				return
			}

			errs.BadRequest(c, "Malformed multipart body")
			return
		}

		switch part.FormName() {
		case "isTemporary":
			isTemporary, err = readField(part)
		case "expiresIn":
			expiresIn, err = readField(part)
		case "file":
			handleFilePart(c, d, part, isTemporary == "true", expiresIn)
			part.Close()
			return
		}

		part.Close()
		if err != nil {
			errs.BadRequest(c, err.Error())
			return
		}
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error":     "No file uploaded",
		"requestID": requestID,
	})
}

func handleFilePart(c *gin.Context, d *internal.Deps, part *multipart.Part, temporary bool, expiresIn string) {
	var ttl time.Duration

	// Expiry is only honoured for temporary uploads
	if temporary && expiresIn != "" {
		secs, err := strconv.ParseInt(expiresIn, 10, 64)
		ttl = time.Duration(secs) * time.Second

		if err != nil || ttl < d.Settings.MinExpiry || ttl > d.Settings.MaxExpiry {
			errs.BadRequest(c, fmt.Sprintf("expiresIn must be between %d and %d seconds",
				int64(d.Settings.MinExpiry.Seconds()), int64(d.Settings.MaxExpiry.Seconds())))
			return
		}
	}

	f, err := d.Uploads.CreateUpload(c.Request.Context(), service.UploadRequest{
		Body:         part,
		OriginalName: part.FileName(),
		MimeType:     part.Header.Get("Content-Type"),
		Temporary:    temporary,
		ExpiresIn:    ttl,
	})
	if err != nil {
		errs.Respond(c, err)
		return
	}

	zap.L().Debug("File uploaded", zap.String("requestID", c.GetString("requestID")), zap.String("short_id", f.ShortID))

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"file":    newUploadResponse(d.Settings.BaseURL, f),
	})
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read form field %s", part.FormName())
	}

	if len(b) > maxFieldSize {
		return "", fmt.Errorf("form field %s is too long", part.FormName())
	}

	return string(b), nil
}
