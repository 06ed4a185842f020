package status

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/grabtube/grabtube/server/internal/manager"
	"github.com/grabtube/grabtube/server/sys"
)

var startedAt = time.Now()

type report struct {
	GoVersion     string `json:"go_version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Downloading   int    `json:"downloading"`
	Pending       int    `json:"pending"`
	FreeSpace     uint64 `json:"free_space"`
}

// ApplyRouter exposes a single health endpoint with queue counts and disk
// headroom.
func ApplyRouter(m *manager.Manager) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			free, err := sys.FreeSpace()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			snapshot := m.QueueStatus()

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(report{
				GoVersion:     runtime.Version(),
				UptimeSeconds: int64(time.Since(startedAt).Seconds()),
				Downloading:   snapshot.Downloading,
				Pending:       snapshot.Pending,
				FreeSpace:     free,
			})
		})
	}
}
