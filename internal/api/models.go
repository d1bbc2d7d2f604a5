package api

import "github.com/fgeck/gowol-homelab/internal/wake"

// FunctionRequest carries the single string argument of a function call.
type FunctionRequest struct {
	Arg string `json:"arg" form:"arg"`
}

// FunctionResponse is returned by every function call.
type FunctionResponse struct {
	Name        string `json:"name"`
	ReturnValue int    `json:"return_value"`
	Cycle       uint64 `json:"cycle,omitempty"`
	Error       string `json:"error,omitempty"`
}

// VariableResponse is returned when reading a variable.
type VariableResponse struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// SessionView is the JSON form of a wake session.
type SessionView struct {
	Phase   string `json:"phase"`
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
	Attempt int    `json:"attempt"`
	Target  string `json:"target,omitempty"`
	Cycle   uint64 `json:"cycle"`
}

func newSessionView(sess wake.Session) SessionView {
	v := SessionView{
		Phase:   sess.Phase.String(),
		Status:  sess.Status,
		Outcome: sess.Outcome,
		Attempt: sess.Attempt,
		Cycle:   sess.Cycle,
	}
	if !sess.Target.IsZero() {
		v.Target = sess.Target.String()
	}
	return v
}
