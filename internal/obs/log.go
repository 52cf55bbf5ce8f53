// Package obs is the observability surface of the API process: the shared
// JSON line logger used by the request middleware and the audit trail, the
// Prometheus metrics for HTTP traffic and temperature readings, and the
// build info gauge.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Every caller emits complete
// JSON documents, one per line, so no prefix or flags are configured.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest writes one structured log line. The request middleware passes
// ts/level/msg/request_id/method/path/status/duration_ms; audit events reuse
// the same sink with their own fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
