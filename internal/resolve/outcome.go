// SPDX-License-Identifier: MIT

package resolve

import "net/http"

// Outcome is the terminal HTTP-level result of a coordinator run. Resolution
// attempts always end in a redirect; only gating failures short-circuit with a
// bare status.
type Outcome struct {
	Status   int
	Location string // set on redirects
	Message  string // set on gating failures
}

// Redirect points the client at a resolved URL (cacheable result, 302).
func Redirect(url string) Outcome {
	return Outcome{Status: http.StatusFound, Location: url}
}

// TemporaryRedirect points the client at a fallback video (307) so players
// retry the original URL later.
func TemporaryRedirect(url string) Outcome {
	return Outcome{Status: http.StatusTemporaryRedirect, Location: url}
}

// Unauthorized rejects a token that failed authentication.
func Unauthorized() Outcome {
	return Outcome{Status: http.StatusUnauthorized, Message: "Unauthorized"}
}

// BadRequest rejects a request whose preconditions failed.
func BadRequest(msg string) Outcome {
	return Outcome{Status: http.StatusBadRequest, Message: msg}
}

// TooManyRequests tells a contender to back off while a resolution for the
// same key is in flight.
func TooManyRequests() Outcome {
	return Outcome{Status: http.StatusTooManyRequests, Message: "Too many requests."}
}
