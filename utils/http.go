package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound service calls. Payouts are idempotent,
// so a timed-out call is safe to retry.
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}
