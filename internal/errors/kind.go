package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed protocol call.
type Kind string

const (
	KindTransport           Kind = "transport"
	KindHTTPStatus          Kind = "http_status"
	KindSigning             Kind = "signing"
	KindDecode              Kind = "decode"
	KindMissingPrerequisite Kind = "missing_prerequisite"
	KindInvalidState        Kind = "invalid_state"
	KindInvalidRequest      Kind = "invalid_request"
	KindCeremony            Kind = "ceremony"
	KindStore               Kind = "store"
	KindInternal            Kind = "internal"
)

// Error is the failure variant of every protocol call. The success variant is the
// call's ordinary return value.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Body   string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// MarshalJSON renders the error the way it is reported in step details.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind   Kind            `json:"kind"`
		Op     string          `json:"op,omitempty"`
		Status int             `json:"status,omitempty"`
		Body   json.RawMessage `json:"body,omitempty"`
		Error  string          `json:"error,omitempty"`
	}{
		Kind:   e.Kind,
		Op:     e.Op,
		Status: e.Status,
	}
	if e.Body != "" {
		if json.Valid([]byte(e.Body)) {
			out.Body = json.RawMessage(e.Body)
		} else {
			quoted, _ := json.Marshal(e.Body)
			out.Body = quoted
		}
	}
	if e.Cause != nil {
		out.Error = e.Cause.Error()
	}
	return json.Marshal(out)
}

// New builds an Error of the given kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// HTTPStatus reports an unexpected response status together with the response body.
func HTTPStatus(op string, status, expected int, body []byte) *Error {
	return &Error{
		Kind:   KindHTTPStatus,
		Op:     op,
		Status: status,
		Body:   string(body),
		Cause:  fmt.Errorf("expected status %d", expected),
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
