package middleware

// Paths that skip authentication and JSON-RPC validation.
const (
	HealthPath    = "/health"
	ReadyPath     = "/ready"
	AgentCardPath = "/.well-known/agent.json"
)

// PublicPaths is the fixed allow-list shared by Auth and Validation.
var PublicPaths = map[string]bool{
	HealthPath:    true,
	ReadyPath:     true,
	AgentCardPath: true,
}

func isPublic(path string) bool {
	return PublicPaths[path]
}

// AdminSignalPath receives signal requests; its body is not JSON-RPC.
const AdminSignalPath = "/admin/signal"
