package strategy

import (
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ehs-handlers/internal/form"
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
)

// Record kinds.
const (
	RecordHazard = "hazard"
	RecordPermit = "permit"
)

// Record is the business record a step is resolved for: a hazard report or a
// work-permit instance. Fields carries the permit's template cells.
type Record struct {
	ID                   string      `json:"id,omitempty" yaml:"id"`
	Kind                 string      `json:"kind,omitempty" yaml:"kind"`
	ReporterID           string      `json:"reporterId,omitempty" yaml:"reporterId"`
	ResponsibleID        string      `json:"responsibleId,omitempty" yaml:"responsibleId"`
	AssignedDepartmentID string      `json:"assignedDepartmentId,omitempty" yaml:"assignedDepartmentId"`
	Location             string      `json:"location,omitempty" yaml:"location"`
	Type                 string      `json:"type,omitempty" yaml:"type"`
	RiskLevel            string      `json:"riskLevel,omitempty" yaml:"riskLevel"`
	Fields               form.Fields `json:"fields,omitempty" yaml:"fields"`
}

// StepContext describes the workflow step being resolved. The fixed strategy
// uses it to infer intent when its configuration is incomplete.
type StepContext struct {
	ID          string
	Name        string
	Description string
}

// Env is everything a strategy may read. It is assembled per call by the
// aggregator and never retained.
type Env struct {
	Record Record
	Graph  *orggraph.Graph
	Step   StepContext
	// ApplicantDepartment is an id or a name; used by current_dept_manager.
	ApplicantDepartment string
	// Handlers are the step's resolved handlers, set before CC entries run.
	Handlers []orggraph.User
	Log      zerolog.Logger
}
