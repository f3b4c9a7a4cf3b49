// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound calls to collaborators (accounting,
// profile sync). Every external call times out; a timeout means "not yet
// processed, safe to retry".
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
