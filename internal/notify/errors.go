package notify

import "errors"

// ErrSendFailed is returned when a notification could not be delivered
// through email or webhook. It is logged, never propagated to callers —
// external delivery failure must not affect the rest of the hub.
var ErrSendFailed = errors.New("notify: send failed")
