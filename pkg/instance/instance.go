package instance

import (
	"os"
	"strings"
)

// GetID returns the process instance identifier used to tag log lines. The
// platform dyno name wins over WORKER_ID, then the hostname.
func GetID() string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
