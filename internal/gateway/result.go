package gateway

import (
	"encoding/json"
	"errors"

	"github.com/rexlx/vexmarket/internal"
)

// Result is the outcome of one backend call. Check Fetched, then OK, then
// look at Data.
type Result struct {
	Fetched bool
	OK      bool
	Status  int
	Data    json.RawMessage
	Err     error
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

func (r Result) envelope() envelope {
	var e envelope
	if len(r.Data) > 0 {
		_ = json.Unmarshal(r.Data, &e)
	}
	return e
}

// Decode unmarshals Data into v.
func (r Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Data, v)
}

// Success is true when the call completed with a 2xx status and the body
// does not report success=false.
func (r Result) Success() bool {
	if !r.Fetched || !r.OK || r.Err != nil {
		return false
	}
	e := r.envelope()
	return e.Success == nil || *e.Success
}

// ErrorMessage is the backend's error text, if any.
func (r Result) ErrorMessage() string {
	return r.envelope().Error
}

// Failure converts an unsuccessful result into the error taxonomy. action
// completes "Something went wrong while ..." for transport failures. A
// successful result yields nil.
func (r Result) Failure(action string) error {
	if !r.Fetched {
		return &internal.TransportError{Action: action, Err: r.Err}
	}
	if r.Success() {
		return nil
	}
	msg := r.ErrorMessage()
	if msg == "" {
		if r.Err != nil {
			msg = r.Err.Error()
		} else {
			msg = (&internal.TransportError{Action: action}).Error()
		}
	}
	return &internal.AppError{Status: r.Status, Message: msg}
}
