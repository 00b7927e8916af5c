package domain

// Execution state keys.
const (
	KeyCurrentTask       = "current_task"
	KeyCurrentStep       = "current_step"
	KeyLastResponse      = "last_response"
	KeyCurrentStepResult = "current_step_result"
	KeyNextStep          = "next_step"
	KeyLoginToken        = "login_token"
)

// ErrorPrefix marks a last_response written after a failed dispatch.
const ErrorPrefix = "ERROR: "

// TokenStatus describes which credentials the state currently holds.
type TokenStatus struct {
	HasPermanent bool   `json:"has_permanent"`
	HasDynamic   bool   `json:"has_dynamic"`
	Active       bool   `json:"active"`
	Preview      string `json:"preview,omitempty"`
}
