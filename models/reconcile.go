package models

import "time"

// ReconciliationAttempt is one append-only audit row: which sections were
// retried at what concurrency, and how they came out.
type ReconciliationAttempt struct {
	AttemptNumber   int           `yaml:"attempt_number" json:"attempt_number"`
	ConcurrencyUsed int           `yaml:"concurrency_used" json:"concurrency_used"`
	SectionsRetried []string      `yaml:"sections_retried" json:"sections_retried"`
	Succeeded       []string      `yaml:"succeeded" json:"succeeded"`
	Failed          []string      `yaml:"failed" json:"failed"`
	Duration        time.Duration `yaml:"duration" json:"duration"`
}

// ReconciliationReport is the end state of a reconcile call. A non-empty
// Remaining after exhausted attempts marks the corpus partially complete;
// it is an operator follow-up condition, not a fatal error.
type ReconciliationReport struct {
	CorpusID       string                  `yaml:"corpus_id" json:"corpus_id"`
	RunID          string                  `yaml:"run_id" json:"run_id"`
	Complete       bool                    `yaml:"complete" json:"complete"`
	CompletionRate float64                 `yaml:"completion_rate" json:"completion_rate"`
	Remaining      []string                `yaml:"remaining,omitempty" json:"remaining,omitempty"`
	Attempts       []ReconciliationAttempt `yaml:"attempts,omitempty" json:"attempts,omitempty"`
}
