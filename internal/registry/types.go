// Package registry defines core types shared across subsystems.
package registry

import "time"

// State represents the lifecycle state of a retrieval run.
type State string

// Run states emitted by the orchestrator.
const (
	StateIdle       State = "IDLE"
	StateBypassing  State = "BYPASSING"
	StateNavigating State = "NAVIGATING"
	StateExtracting State = "EXTRACTING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
	StateRetrying   State = "RETRYING"
	StateExhausted  State = "EXHAUSTED"
)

// BusinessInfo holds the fixed-schema core section of a filing. Keys mirror
// the portal's labels exactly; a value the portal omits is an empty string,
// never a missing key.
type BusinessInfo struct {
	BusinessName               string `json:"Business Name"`
	ControlNumber              string `json:"Control Number"`
	BusinessType               string `json:"Business Type"`
	BusinessStatus             string `json:"Business Status"`
	BusinessPurpose            string `json:"Business Purpose"`
	PrincipalOfficeAddress     string `json:"Principal Office Address"`
	DateOfFormation            string `json:"Date of Formation / Registration Date"`
	Jurisdiction               string `json:"Jurisdiction"`
	LastAnnualRegistrationYear string `json:"Last Annual Registration Year"`
	DissolvedDate              string `json:"Dissolved Date"`
}

// RegisteredAgent holds the agent section. Dissolved or agentless entities
// may carry all-empty values; the section itself must still exist on the page.
type RegisteredAgent struct {
	Name            string `json:"Registered Agent Name"`
	PhysicalAddress string `json:"Physical Address"`
	County          string `json:"County"`
}

// Officer is one row of the officer grid, in document order.
type Officer struct {
	Name            string `json:"Officer Name"`
	Title           string `json:"Officer Title"`
	BusinessAddress string `json:"Officer Business Address"`
}

// BusinessRecord is the normalized filing assembled from one detail page.
type BusinessRecord struct {
	Info     BusinessInfo    `json:"Business Information"`
	Agent    RegisteredAgent `json:"Registered Agent Information"`
	Officers []Officer       `json:"Officer Information"`
}

// Request identifies one retrieval run.
type Request struct {
	RequestID     string
	ControlNumber string
}

// Outcome summarizes a finished run: exactly one of Record (succeeded) or
// LastErr (exhausted) is meaningful.
type Outcome struct {
	State       State
	Attempts    int
	Record      *BusinessRecord
	LastKind    FailureKind
	LastErr     error
	Diagnostics []string
}

// Succeeded reports whether the run produced a record.
func (o Outcome) Succeeded() bool {
	return o.State == StateSucceeded && o.Record != nil
}

// ResultDocument is the success artifact written once per run.
type ResultDocument struct {
	RequestID     string          `json:"request_id"`
	ControlNumber string          `json:"control_number"`
	Attempts      int             `json:"attempts"`
	Data          *BusinessRecord `json:"data"`
}

// FailureDocument is the exhaustion artifact written once per failed run.
type FailureDocument struct {
	RequestID     string   `json:"request_id"`
	ControlNumber string   `json:"control_number"`
	Attempts      int      `json:"attempts"`
	LastError     string   `json:"last_error"`
	Diagnostics   []string `json:"diagnostics"`
}

// ProbeVerdict classifies the preflight HTTP look at the portal.
type ProbeVerdict struct {
	StatusCode int
	FinalURL   string
	Challenge  bool
	Marker     string
	Duration   time.Duration
}
