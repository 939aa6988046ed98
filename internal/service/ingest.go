package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	ingestChunkSize = 32 << 10
	sniffSize       = 3072
	maxNameLength   = 255
)

type SizeClass string

const (
	SizeClassTemporary SizeClass = "temporary"
	SizeClassPermanent SizeClass = "permanent"
)

// ClassFor picks the size class matching the uploader's temporary flag
func ClassFor(temporary bool) SizeClass {
	if temporary {
		return SizeClassTemporary
	}

	return SizeClassPermanent
}

// Limits are the per class upload ceilings in bytes
type Limits struct {
	Temporary int64
	Permanent int64
}

var DefaultLimits = Limits{
	Temporary: 200 << 20,
	Permanent: 50 << 20,
}

func (l Limits) For(c SizeClass) int64 {
	if c == SizeClassTemporary {
		return l.Temporary
	}

	return l.Permanent
}

// Ingested is a fully read upload waiting to be committed. The bytes live in
// a spool file that was written in the same pass the digest was computed in,
// so whatever gets stored is exactly what was hashed.
type Ingested struct {
	StorageKey    string
	ContentDigest string
	Size          int64
	MimeType      string
	OriginalName  string
	Extension     string

	spool *os.File
}

// Reader rewinds the spool file and returns it
func (i *Ingested) Reader() (io.Reader, error) {
	if _, err := i.spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind spool file, %w", err)
	}

	return i.spool, nil
}

// Close discards the spool file
func (i *Ingested) Close() error {
	if i == nil || i.spool == nil {
		return nil
	}

	err := i.spool.Close()
	if rmErr := os.Remove(i.spool.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return rmErr
	}

	return err
}

// Ingestor consumes inbound streams exactly once
type Ingestor struct {
	limits  Limits
	tempDir string
}

// NewIngestor creates an ingestor spooling into tempDir. An empty tempDir
// means the OS default.
func NewIngestor(limits Limits, tempDir string) *Ingestor {
	return &Ingestor{limits: limits, tempDir: tempDir}
}

// Ingest reads r chunk by chunk, feeding every chunk to both the SHA-256
// state and the spool file. Crossing the class ceiling aborts immediately
// with an *UploadTooLargeError and nothing is kept.
func (in *Ingestor) Ingest(ctx context.Context, r io.Reader, class SizeClass, originalName, mimeType string) (*Ingested, error) {
	limit := in.limits.For(class)

	spool, err := os.CreateTemp(in.tempDir, "ingest-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file, %w", err)
	}

	ing := &Ingested{spool: spool}
	committed := false
	defer func() {
		if !committed {
			if err := ing.Close(); err != nil {
				zap.L().Warn("Failed to discard spool file", zap.String("path", spool.Name()), zap.Error(err))
			}
		}
	}()

	hasher := sha256.New()
	sink := io.MultiWriter(hasher, spool)
	buf := make([]byte, ingestChunkSize)
	head := make([]byte, 0, sniffSize)

	var size int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			size += int64(n)
			if size > limit {
				zap.L().Debug("Upload aborted, size ceiling crossed",
					zap.String("class", string(class)),
					zap.Int64("limit", limit))

				return nil, &UploadTooLargeError{Class: class, Limit: limit}
			}

			if len(head) < sniffSize {
				head = append(head, buf[:min(n, sniffSize-len(head))]...)
			}

			if _, err := sink.Write(buf[:n]); err != nil {
				return nil, fmt.Errorf("failed to write to spool file, %w", err)
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("failed to read upload stream, %w", rerr)
		}
	}

	name := sanitizeFilename(originalName)
	ext := filepath.Ext(name)
	digest := hex.EncodeToString(hasher.Sum(nil))

	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(head).String()
	}

	ing.StorageKey = digest + ext
	ing.ContentDigest = digest
	ing.Size = size
	ing.MimeType = mimeType
	ing.OriginalName = name
	ing.Extension = strings.ToLower(ext)

	committed = true
	return ing, nil
}

// sanitizeFilename strips directory components and limits length
func sanitizeFilename(name string) string {
	// filepath.Base is platform specific, normalize windows separators first
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if len(name) > maxNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxNameLength-len(ext)] + ext
	}

	if name == "" || name == "." || name == "/" {
		name = "upload"
	}

	return name
}
