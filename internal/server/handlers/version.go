package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/agentfleet/agentfleet/internal/a2a"
	"github.com/agentfleet/agentfleet/internal/agentdef"
	"github.com/agentfleet/agentfleet/internal/config"
)

// Build metadata, injected from main via SetVersionInfo.
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

// SetVersionInfo records the binary's build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// VersionResponse describes the binary and the agent it is serving.
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Agent        AgentInfo   `json:"agent"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// AgentInfo identifies the definition behind this server.
type AgentInfo struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	Executor   string `json:"executor"`
	Protocol   string `json:"jsonrpc"`
	Streaming  bool   `json:"streaming"`
}

// NewAgentInfo summarizes def. A nil definition yields an empty agent with
// only the protocol version set.
func NewAgentInfo(def *agentdef.Definition) AgentInfo {
	info := AgentInfo{Protocol: a2a.Version}
	if def == nil {
		return info
	}
	info.Name = def.Name()
	info.Version = def.Metadata.Version
	info.APIVersion = def.APIVersion
	info.Executor = def.Executor.Kind
	if def.Executor.Kind == agentdef.ExecutorRelay && def.Executor.Target != "" {
		info.Executor += " -> " + def.Executor.Target
	}
	info.Streaming = def.A2A.Capabilities.Streaming
	return info
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// Versions returns the gofulmen and crucible versions linked into the binary.
func Versions() DepInfo {
	version := crucible.GetVersion()
	return DepInfo{Gofulmen: version.Gofulmen, Crucible: version.Crucible}
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler reports build metadata alongside the served agent.
func VersionHandler(def *agentdef.Definition) http.HandlerFunc {
	agent := NewAgentInfo(def)
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{
			App: AppInfo{
				Name:      config.AppName,
				Version:   AppVersion,
				Commit:    AppCommit,
				BuildDate: AppBuildDate,
				GoVersion: runtime.Version(),
			},
			Agent:        agent,
			Dependencies: Versions(),
			Runtime: RuntimeInfo{
				Platform:      runtime.GOOS + "/" + runtime.GOARCH,
				NumCPU:        runtime.NumCPU(),
				NumGoroutines: runtime.NumGoroutine(),
			},
		})
	}
}
