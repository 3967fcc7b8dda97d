package constants

// HTTP paths served by the API.
const (
	PathStatus = "/"
	PathHealth = "/api/health"
	PathReady  = "/ready"
	PathWS     = "/ws"
)
