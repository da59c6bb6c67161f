package models

import "time"

// FileKind classifies stored PDF documents.
type FileKind string

const (
	FileKindResult    FileKind = "RESULT"
	FileKindTimetable FileKind = "TIMETABLE"
)

// StoredFile is a PDF kept as a blob in the primary datastore. Content is
// transported to and from clients as a base64 string inside JSON.
type StoredFile struct {
	ID         string    `db:"id" json:"id"`
	Kind       FileKind  `db:"kind" json:"kind"`
	Title      string    `db:"title" json:"title"`
	BatchID    string    `db:"batch_id" json:"batch_id"`
	SubjectID  *string   `db:"subject_id" json:"subject_id,omitempty"`
	Semester   *int      `db:"semester" json:"semester,omitempty"`
	Content    []byte    `db:"content" json:"-"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StoredFileInfo is the listing projection without the blob payload.
type StoredFileInfo struct {
	ID         string    `db:"id" json:"id"`
	Kind       FileKind  `db:"kind" json:"kind"`
	Title      string    `db:"title" json:"title"`
	BatchID    string    `db:"batch_id" json:"batch_id"`
	SubjectID  *string   `db:"subject_id" json:"subject_id,omitempty"`
	Semester   *int      `db:"semester" json:"semester,omitempty"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
