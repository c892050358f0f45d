package server

import (
	"encoding/json"
	"net/http"
)

// Problem types owned by the server itself. Feature packages mint their own
// under the same base (auth-error, casework-error, payment-error).
const (
	ProblemTypeNotFound    = "https://creditdesk.dev/problems/not-found"
	ProblemTypeInternal    = "https://creditdesk.dev/problems/internal-error"
	ProblemTypeRateLimited = "https://creditdesk.dev/problems/rate-limited"
)

// Problem is an RFC 7807 body. RequestID is an extension member so support
// staff can find the matching log line.
type Problem struct {
	Type      string `json:"type" example:"https://creditdesk.dev/problems/casework-error"`
	Title     string `json:"title" example:"Bad Request"`
	Status    int    `json:"status" example:"400"`
	Detail    string `json:"detail,omitempty" example:"credit score must be between 300 and 850"`
	Instance  string `json:"instance,omitempty" example:"/api/v1/clients"`
	RequestID string `json:"request_id,omitempty" example:"5f0c6f7e-3c1a-4d55-9a0e-2b8f1f6f9d11"`
}

// WriteProblem writes p for request r, filling Title, Instance and
// RequestID when unset.
func WriteProblem(w http.ResponseWriter, r *http.Request, p Problem) {
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	if r != nil {
		if p.Instance == "" {
			p.Instance = r.URL.Path
		}
		if p.RequestID == "" {
			p.RequestID = RequestID(r.Context())
		}
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, Problem{Type: ProblemTypeNotFound, Status: http.StatusNotFound, Detail: detail})
}

func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, Problem{Type: ProblemTypeInternal, Status: http.StatusInternalServerError, Detail: detail})
}

func RateLimited(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, Problem{Type: ProblemTypeRateLimited, Status: http.StatusTooManyRequests, Detail: detail})
}
