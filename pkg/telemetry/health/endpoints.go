package health

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	// Version is the semantic version (e.g., "1.0.0")
	Version string `json:"version"`

	// Commit is the git commit hash
	Commit string `json:"commit"`

	// BuildTime is when the binary was built
	BuildTime string `json:"build_time"`

	// GoVersion is the Go version used to build
	GoVersion string `json:"go_version"`
}

// LivenessHandler returns an HTTP handler for the liveness endpoint.
//
// Example response:
//
//	{
//	    "status": "ok",
//	    "timestamp": "2026-10-01T10:30:00Z"
//	}
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler returns an HTTP handler for the readiness endpoint.
// It performs all registered component health checks.
//
// Returns:
//   - 200 OK: ready, or degraded by an optional dependency
//   - 503 Service Unavailable: a critical dependency failed
//
// Example response (degraded):
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "upstream": {"status": "ok", "critical": true},
//	        "redis": {"status": "unhealthy", "critical": false, "message": "dial tcp: connection refused"}
//	    },
//	    "timestamp": "2026-10-01T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.CheckReadiness(r.Context())

		code := http.StatusOK
		if !status.Ready() {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, r, code, status)
	}
}

// VersionHandler returns an HTTP handler for the version information endpoint.
func VersionHandler(version, commit, buildTime string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusOK, info)
	}
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, v any) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Register mounts the liveness, readiness and version endpoints on mux.
// Empty paths are skipped.
//
// Usage:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.Register(mux, "/health", "/ready", "/version", version.Info())
func (c *Checker) Register(mux *http.ServeMux, livenessPath, readinessPath, versionPath string, info VersionInfo) {
	if livenessPath != "" {
		mux.Handle(livenessPath, c.LivenessHandler())
	}
	if readinessPath != "" {
		mux.Handle(readinessPath, c.ReadinessHandler())
	}
	if versionPath != "" {
		mux.Handle(versionPath, VersionHandler(info.Version, info.Commit, info.BuildTime))
	}
}
