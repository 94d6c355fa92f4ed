package models

import (
	"time"
)

// Issue complexity buckets, assigned from labels by the watcher.
const (
	ComplexitySimple  = "simple"
	ComplexityMedium  = "medium"
	ComplexityComplex = "complex"
)

// TaskSpec is a unit of work dropped into the filesystem queue for coding
// agents. Produced by the issue watcher, consumed out of process.
type TaskSpec struct {
	IssueID            int       `json:"issue_id"`
	ProjectID          string    `json:"project_id"`
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Steps              []string  `json:"steps"`
	AcceptanceCriteria []string  `json:"acceptance_criteria"`
	Complexity         string    `json:"complexity"`
	URL                string    `json:"url"`
	Platform           string    `json:"platform"`
	Repository         string    `json:"repository"`
	QueuedAt           time.Time `json:"queued_at"`
}
