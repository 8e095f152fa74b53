package health

import (
	"net/http"
	"time"
)

// APIStatus is the liveness document served at GET /api.
type APIStatus struct {
	System    string `json:"system"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// APIHandler returns the application liveness handler. now is injectable
// for tests; nil means time.Now.
func APIHandler(now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, APIStatus{
			System:    "api",
			Status:    "OK",
			Timestamp: now().UTC().Format(time.RFC3339Nano),
		})
	}
}
