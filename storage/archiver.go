package storage

import "context"

type ArchiveResult struct {
	Key      string
	Location string
	ETag     string
}

// ResultsArchiver stores the final results snapshot of a completed
// session. Uploads are best-effort; a failed archive never fails the
// session finish.
type ResultsArchiver interface {
	UploadSnapshot(ctx context.Context, key string, snapshot []byte) (*ArchiveResult, error)
	PublicURL(key string) string
}
