package domain

import "time"

type IngestedFile struct {
	ID            int64
	OwnerClientID string
	FileName      string
	StorageURL    string
	UploadedAt    time.Time
}

// IngestResult summarizes one registered batch.
type IngestResult struct {
	OwnerClientID string
	BatchID       string
	Files         []IngestedFile
}
