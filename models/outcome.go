package models

import (
	"fmt"
	"time"
)

// OutcomeState is the per-section extraction state machine:
//
//	Discovered -> Fetching -> {SingleVersionComplete | MultiVersionDetected | Failed}
//	MultiVersionDetected -> ResolvingVersions -> {MultiVersionComplete | Failed}
//
// Failed is terminal but re-enterable: an explicit retry moves it back to
// Fetching. It is never silently dropped.
type OutcomeState string

const (
	StateDiscovered           OutcomeState = "discovered"
	StateFetching             OutcomeState = "fetching"
	StateSingleVersionComplete OutcomeState = "single_version_complete"
	StateMultiVersionDetected OutcomeState = "multi_version_detected"
	StateResolvingVersions    OutcomeState = "resolving_versions"
	StateMultiVersionComplete OutcomeState = "multi_version_complete"
	StateFailed               OutcomeState = "failed"
)

// Failure classes, aligned with the retry policy: transient and parse
// failures are retriable, permanent failures are not.
const (
	FailureTransient = "transient"
	FailurePermanent = "permanent"
	FailureParse     = "parse"
	FailureSession   = "session"
)

var allowedTransitions = map[OutcomeState][]OutcomeState{
	StateDiscovered:           {StateFetching},
	StateFetching:             {StateSingleVersionComplete, StateMultiVersionDetected, StateFailed},
	StateMultiVersionDetected: {StateResolvingVersions},
	StateResolvingVersions:    {StateMultiVersionComplete, StateFailed},
	StateFailed:               {StateFetching}, // explicit retry only
}

// Terminal reports whether the state ends a section's processing.
func (s OutcomeState) Terminal() bool {
	switch s {
	case StateSingleVersionComplete, StateMultiVersionComplete, StateFailed:
		return true
	}
	return false
}

// Successful reports whether the state is a successful terminal state.
func (s OutcomeState) Successful() bool {
	return s == StateSingleVersionComplete || s == StateMultiVersionComplete
}

// SectionOutcome is the durable record of one section's extraction.
type SectionOutcome struct {
	SectionID     string          `yaml:"section_id" json:"section_id"`
	State         OutcomeState    `yaml:"state" json:"state"`
	Body          string          `yaml:"body,omitempty" json:"body,omitempty"`
	History       string          `yaml:"history,omitempty" json:"history,omitempty"`
	Versions      []VersionRecord `yaml:"versions,omitempty" json:"versions,omitempty"`
	FailureReason string          `yaml:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	FailureClass  string          `yaml:"failure_class,omitempty" json:"failure_class,omitempty"`
	UpdatedAt     time.Time       `yaml:"updated_at" json:"updated_at"`
}

// Transition moves the outcome to a new state, enforcing the state machine.
func (o *SectionOutcome) Transition(to OutcomeState) error {
	for _, next := range allowedTransitions[o.State] {
		if next == to {
			o.State = to
			o.UpdatedAt = time.Now()
			if to != StateFailed {
				o.FailureReason = ""
				o.FailureClass = ""
			}
			return nil
		}
	}
	return fmt.Errorf("invalid outcome transition for section %s: %s -> %s", o.SectionID, o.State, to)
}

// Fail moves the outcome to Failed with a reason and class.
func (o *SectionOutcome) Fail(class, reason string) error {
	if err := o.Transition(StateFailed); err != nil {
		return err
	}
	o.FailureClass = class
	o.FailureReason = reason
	return nil
}
