package refresh

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedBody is returned when a 2xx refresh response carries no usable
// expiresAt timestamp. Scheduling from a garbage expiry would fire
// immediately and loop, so it is treated as a protocol failure.
var ErrMalformedBody = errors.New("refresh response missing a valid expiresAt")

// HTTPResponseError reports a non-2xx reply from the refresh endpoint.
type HTTPResponseError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPResponseError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("refresh endpoint returned %s", e.Status)
	}
	return fmt.Sprintf("refresh endpoint returned %s: %s", e.Status, body)
}
