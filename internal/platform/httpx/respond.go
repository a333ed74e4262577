// Package httpx writes JSON and problem+json responses for API clients.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

const problemType = "about:blank"

// ProblemDetail is an RFC 7807 body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, "application/json", status, data)
}

// Problem writes a problem+json body whose title is the status text. The
// request path becomes the instance when r is not nil.
func Problem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	p := ProblemDetail{Type: problemType, Title: http.StatusText(status), Status: status, Detail: detail}
	if r != nil {
		p.Instance = r.URL.Path
	}
	write(w, "application/problem+json", status, p)
}

// WantsJSON reports whether the client asked for a JSON response.
func WantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") || strings.Contains(accept, "application/problem+json")
}

func write(w http.ResponseWriter, contentType string, status int, data any) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
