package models

// ImportEntity names the entity kinds accepted by the CSV importer.
type ImportEntity string

const (
	ImportEntityUsers    ImportEntity = "users"
	ImportEntityCourses  ImportEntity = "courses"
	ImportEntityBatches  ImportEntity = "batches"
	ImportEntitySubjects ImportEntity = "subjects"
)

// Valid reports whether the entity kind is importable.
func (e ImportEntity) Valid() bool {
	switch e {
	case ImportEntityUsers, ImportEntityCourses, ImportEntityBatches, ImportEntitySubjects:
		return true
	default:
		return false
	}
}

// ImportRowOutcome classifies a single CSV row.
type ImportRowOutcome string

const (
	ImportRowCreated   ImportRowOutcome = "created"
	ImportRowDuplicate ImportRowOutcome = "duplicate"
	ImportRowFailed    ImportRowOutcome = "failed"
)

// ImportRowResult reports what happened to one CSV row.
type ImportRowResult struct {
	Line    int              `json:"line"`
	Outcome ImportRowOutcome `json:"outcome"`
	Message string           `json:"message,omitempty"`
	ID      string           `json:"id,omitempty"`
}

// ImportSummary aggregates a whole file's outcome.
type ImportSummary struct {
	Entity     ImportEntity      `json:"entity"`
	Total      int               `json:"total"`
	Created    int               `json:"created"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
	Rows       []ImportRowResult `json:"rows"`
}
