package server

import (
	"encoding/json"
	"net/http"

	"github.com/HerbHall/alarmdesk/internal/inventory"
)

// Problem is an RFC 7807 body. RequestID is an extension member carrying
// the X-Request-ID of the failed call so it can be found in the access log.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// NewProblem builds the problem for status on r. Type URIs follow the same
// scheme the plugin handlers use (inventory.ProblemType).
func NewProblem(r *http.Request, status int, detail string) Problem {
	return Problem{
		Type:      inventory.ProblemType(status),
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		RequestID: RequestID(r.Context()),
	}
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	p := NewProblem(r, status, detail)
	if p.RequestID == "" {
		p.RequestID = w.Header().Get("X-Request-ID")
	}
	WriteProblem(w, p)
}
