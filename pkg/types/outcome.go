package types

import "time"

// Status is the tagged result of validating one page under one capability.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// CheckpointResult is the verdict returned by the visual-diff service for
// one screenshot.
type CheckpointResult struct {
	Status              string  `json:"status"`
	Matched             bool    `json:"matched"`
	DiffPercentage      float64 `json:"diff_percentage"`
	BaselineEstablished bool    `json:"baseline_established"`
	Raw                 string  `json:"-"`
}

// PageOutcome records what happened for one (capability, page) pair.
type PageOutcome struct {
	Capability      string            `json:"capability"`
	CapabilityIndex int               `json:"capability_index"`
	Page            string            `json:"page"`
	PageIndex       int               `json:"page_index"`
	Status          Status            `json:"status"`
	Kind            Kind              `json:"kind,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	ScreenshotName  string            `json:"screenshot_name,omitempty"`
	Checkpoint      *CheckpointResult `json:"checkpoint,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	Duration        time.Duration     `json:"duration"`

	Err error `json:"-"`
}

// Succeeded reports whether the outcome is a Success.
func (o PageOutcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Fail turns o into a Failure carrying err.
func (o PageOutcome) Fail(err error) PageOutcome {
	o.Status = StatusFailure
	o.Err = err
	o.Kind = KindOf(err)
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}
