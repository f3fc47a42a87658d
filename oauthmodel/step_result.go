package oauthmodel

// StepResult is one entry of the audit trail returned by every flow step.
// Details holds pretty-printed JSON of the call's payload or of its error.
type StepResult struct {
	Message  string `json:"message"`
	Details  string `json:"details"`
	Success  bool   `json:"success"`
	Redirect string `json:"redirect,omitempty"`
}

// Succeeded reports whether every entry succeeded. An empty trail did not succeed.
func Succeeded(results []StepResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

// LastRedirect returns the last redirect carried by the trail.
func LastRedirect(results []StepResult) string {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Redirect != "" {
			return results[i].Redirect
		}
	}
	return ""
}
