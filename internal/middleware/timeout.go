package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"task-manager/internal/model"
)

const defaultRequestTimeout = 15 * time.Second

// Timeout answers 503 with the error envelope when a handler overruns
// limit. Writes the handler makes after that are discarded.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = defaultRequestTimeout
	}

	body, _ := json.Marshal(model.APIResponse{
		Error: &model.APIError{Code: "REQUEST_TIMEOUT", Message: "Request timed out"},
	})

	return func(next http.Handler) http.Handler {
		bounded := http.TimeoutHandler(next, limit, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			bounded.ServeHTTP(w, r)
		})
	}
}
