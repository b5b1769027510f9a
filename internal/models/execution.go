package models

import (
	"time"
)

type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// Valid reports whether s is one of the known step states.
func (s StepStatus) Valid() bool {
	return s == StepRunning || s.Terminal()
}

// Step names are consumed by external UIs; renaming one is a breaking change.
const (
	StepInitialization = "Initialization"
	StepDownload       = "Download"
	StepExtraction     = "Extraction"
	StepStorage        = "Storage"
	StepFiltering      = "Filtering"
	StepEmbedding      = "Embedding"
	StepScoring        = "Scoring"
)

// PipelineSteps lists the stage names in execution order.
var PipelineSteps = []string{
	StepInitialization,
	StepDownload,
	StepExtraction,
	StepStorage,
	StepFiltering,
	StepEmbedding,
	StepScoring,
}

// Step 执行中某个阶段的进度记录
type Step struct {
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Details   string     `json:"details,omitempty"`
}

// Execution 一次流水线运行
type Execution struct {
	ID          string          `json:"id"`
	Status      ExecutionStatus `json:"status"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     *time.Time      `json:"end_time"`
	Logs        string          `json:"logs"`
	Steps       []Step          `json:"steps"`
	DocumentIDs []string        `json:"document_ids,omitempty"`
}

// FindStep returns the step with the given name, if any.
func (e *Execution) FindStep(name string) (Step, bool) {
	for _, s := range e.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}
