package httpx

import (
	"encoding/json"
	"net/http"
)

const (
	contentJSON    = "application/json"
	contentProblem = "application/problem+json"
)

// ProblemDetail is the RFC 7807 body. Type carries the error kind.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func write(w http.ResponseWriter, contentType string, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// JSON writes body with status.
func JSON(w http.ResponseWriter, status int, body any) {
	write(w, contentJSON, status, body)
}

// Problem writes a problem document.
func Problem(w http.ResponseWriter, status int, title, kind, detail string) {
	write(w, contentProblem, status, ProblemDetail{Type: kind, Title: title, Status: status, Detail: detail})
}
