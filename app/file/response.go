// Package file contains the public file endpoints
package file

import (
	"strings"
	"time"

	"bitwise74/tmpfile-api/internal/model"
)

// publicID drops everything from the first dot. Shared links carry the
// extension (abc12.png) but records are keyed by the bare ID.
func publicID(raw string) string {
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		return raw[:i]
	}

	return raw
}

func fileURL(baseURL string, f *model.File) string {
	return strings.TrimRight(baseURL, "/") + "/f/" + f.ShortID + f.Extension
}

type uploadResponse struct {
	URL          string     `json:"url"`
	FileID       string     `json:"fileId"`
	Extension    string     `json:"extension"`
	OriginalName string     `json:"originalName"`
	Size         int64      `json:"size"`
	MimeType     string     `json:"mimeType"`
	SHA256       string     `json:"sha256"`
	IsTemporary  bool       `json:"isTemporary"`
	IsDuplicate  bool       `json:"isDuplicate"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func newUploadResponse(baseURL string, f *model.File) uploadResponse {
	return uploadResponse{
		URL:          fileURL(baseURL, f),
		FileID:       f.ShortID,
		Extension:    f.Extension,
		OriginalName: f.OriginalName,
		Size:         f.Size,
		MimeType:     f.MimeType,
		SHA256:       f.ContentDigest,
		IsTemporary:  f.IsTemporary,
		IsDuplicate:  f.IsDuplicate,
		ExpiresAt:    f.ExpiresAt,
		CreatedAt:    f.CreatedAt,
	}
}

// Public metadata only, storage internals stay hidden
type infoResponse struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	OriginalName  string     `json:"originalName"`
	MimeType      string     `json:"mimeType"`
	Size          int64      `json:"size"`
	IsTemporary   bool       `json:"isTemporary"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	DownloadCount int64      `json:"downloadCount"`
	CreatedAt     time.Time  `json:"createdAt"`
}
