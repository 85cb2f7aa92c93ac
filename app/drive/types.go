package drive

import "time"

// Photo is a candidate file reference returned by Drive. It is read-only
// to the rest of the pipeline; only the ID outlives a run, via the ledger.
type Photo struct {
	ID           string
	Name         string
	MimeType     string
	ViewURL      string
	ModifiedTime time.Time
}
