package constants

const (
	// Prometheus namespace for all metrics exposed by the service.
	MetricsNamespace = "echo_callback"

	QueryParamAuthorizationCode = "code"
	QueryParamState             = "state"

	HeaderRequestID = "X-Request-Id"
)
