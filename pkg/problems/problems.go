// Package problems writes RFC 7807 problem documents.
package problems

import (
	"encoding/json"
	"net/http"
	"strings"
)

type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// Base returns the base URL for problem type identifiers, derived from the
// public URL of the service (https://www.example.com -> https://www.example.com/problems).
func Base(publicURL string) string {
	if publicURL == "" {
		return "https://example.com/problems"
	}
	return strings.TrimRight(publicURL, "/") + "/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(base, slug string) string { return base + "/" + slug }

// Write sends p as application/problem+json with p.Status.
func Write(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
