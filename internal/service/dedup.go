package service

import (
	"context"

	"bitwise74/tmpfile-api/internal/model"
)

// DigestLookup finds the latest record holding a given digest, nil if none
type DigestLookup interface {
	ByDigest(ctx context.Context, digest string) (*model.File, error)
}

// Resolution is the outcome of a dedup check
type Resolution struct {
	// Key the new record must point at
	StorageKey string
	// True when the content already exists and no write is needed
	Duplicate bool
	Match     *model.File
}

// DedupResolver matches freshly hashed content against existing records
type DedupResolver struct {
	lookup DigestLookup
}

func NewDedupResolver(lookup DigestLookup) *DedupResolver {
	return &DedupResolver{lookup: lookup}
}

// Resolve returns the key to use for content with the given digest. When a
// record with the same digest exists its key wins over candidateKey, so all
// records of one digest converge on one object even if key derivation
// changes later.
func (d *DedupResolver) Resolve(ctx context.Context, digest, candidateKey string) (*Resolution, error) {
	if d == nil || d.lookup == nil {
		return nil, notInitialized("dedup resolver")
	}

	match, err := d.lookup.ByDigest(ctx, digest)
	if err != nil {
		return nil, err
	}

	if match == nil {
		return &Resolution{StorageKey: candidateKey}, nil
	}

	return &Resolution{
		StorageKey: match.StorageKey,
		Duplicate:  true,
		Match:      match,
	}, nil
}
