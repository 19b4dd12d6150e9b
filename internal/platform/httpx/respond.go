// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Problem type URNs returned on error responses. Clients dispatch on
// these, not on titles.
const problemTypeBase = "urn:veridian:problem:"

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Type:   problemType(status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func problemType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return problemTypeBase + "invalid-input"
	case http.StatusUnauthorized:
		return problemTypeBase + "unauthenticated"
	case http.StatusForbidden:
		return problemTypeBase + "forbidden"
	case http.StatusNotFound:
		return problemTypeBase + "not-found"
	case http.StatusConflict:
		return problemTypeBase + "conflict"
	case http.StatusUnprocessableEntity:
		return problemTypeBase + "unprocessable"
	case http.StatusTooManyRequests:
		return problemTypeBase + "rate-limited"
	default:
		return "about:blank"
	}
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
