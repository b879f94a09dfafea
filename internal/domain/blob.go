package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to the settlement archive.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver writes a settled game's report and its delegation records to
// long-term storage. Archive failures are operational noise, never fatal to
// the settlement itself.
type Archiver interface {
	ArchiveSettlement(ctx context.Context, settlement Settlement, records []DelegationRecord) error
}
