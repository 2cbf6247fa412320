package backend

import (
	"fmt"

	"ragdesk/internal/domain"
)

// DispatchError reports a failed action: transport error, non-2xx status,
// timeout or an unparseable body. Err is the original cause.
type DispatchError struct {
	Action     domain.Action
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("dispatch %s: HTTP %d: %v", e.Action, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dispatch %s: %v", e.Action, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
