// Package schemas defines the shared data model exchanged between the
// intent classifier, the workflow engine and the tool gateway.
package schemas

// Preference is the persisted MHMD consent value.
type Preference string

const (
	PreferenceOptIn  Preference = "OPT_IN"
	PreferenceOptOut Preference = "OPT_OUT"
)

// IsValid reports whether p is one of the two known consent values.
func (p Preference) IsValid() bool {
	return p == PreferenceOptIn || p == PreferenceOptOut
}

// WorkflowType selects which fixed workflow the engine runs.
type WorkflowType string

const (
	WorkflowMHMDOnly    WorkflowType = "mhmd_only"
	WorkflowSwaggerOnly WorkflowType = "swagger_only"
	WorkflowCombined    WorkflowType = "combined"
)

// IsValid reports whether t names a known workflow variant.
func (t WorkflowType) IsValid() bool {
	switch t {
	case WorkflowMHMDOnly, WorkflowSwaggerOnly, WorkflowCombined:
		return true
	}
	return false
}

// UserRecord is the single persisted preference record the workflows
// read and write.
type UserRecord struct {
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	MHMDPreference Preference `json:"mhmd_preference"`
}

// WorkflowInput carries the optional user-supplied parameters for the
// toggle workflow. Nil fields mean "let the engine default". Inputs are
// treated as immutable once handed to the engine.
type WorkflowInput struct {
	Name       *string     `json:"name,omitempty"`
	Email      *string     `json:"email,omitempty"`
	Preference *Preference `json:"preference,omitempty"`
}

// ActionResult is the uniform outcome of a single browser primitive.
// Primitives never return Go errors for page-level faults; they fold
// everything into this envelope.
type ActionResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	CurrentURL string `json:"current_url,omitempty"`
	Title      string `json:"title,omitempty"`
}

// DatabaseVerification is the persisted-record check a workflow performs
// after its save step: whether the read-back matched, a human-readable
// summary, and the record as read.
type DatabaseVerification struct {
	Verified bool        `json:"verified"`
	Message  string      `json:"message"`
	Record   *UserRecord `json:"record,omitempty"`
}

// WorkflowResult is the envelope every workflow returns, success or not.
// WorkflowSteps is append-only and ordered; a failed run ends with an
// "ERROR:" entry describing the step that aborted it.
type WorkflowResult struct {
	Success              bool                  `json:"success"`
	Message              string                `json:"message"`
	WorkflowSteps        []string              `json:"workflow_steps"`
	Screenshot           string                `json:"screenshot,omitempty"`
	ScreenshotFilePath   string                `json:"screenshot_file_path,omitempty"`
	FinalPreference      string                `json:"final_preference,omitempty"`
	DatabaseVerification *DatabaseVerification `json:"database_verification,omitempty"`
	VerificationFilePath string                `json:"verification_file_path,omitempty"`
	APIResponseStatus    string                `json:"api_response_status,omitempty"`
	Error                string                `json:"error,omitempty"`
}

// CombinedResult wraps the two halves of the combined workflow. Swagger
// is nil when the MHMD half failed and the second half never started.
type CombinedResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	MHMD    *WorkflowResult `json:"mhmd_workflow,omitempty"`
	Swagger *WorkflowResult `json:"swagger_workflow,omitempty"`
}

// ClassifiedIntent is the structured output of the intent classifier.
// Optional fields stay nil when the command did not mention them so the
// engine's own defaulting applies downstream.
type ClassifiedIntent struct {
	WorkflowType WorkflowType `json:"workflow_type"`
	Name         *string      `json:"name,omitempty"`
	Email        *string      `json:"email,omitempty"`
	Preference   *Preference  `json:"preference,omitempty"`
}
