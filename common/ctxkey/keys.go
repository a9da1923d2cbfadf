// Package ctxkey centralizes the gin.Context keys used to thread per-request
// state between middleware, handlers, and the forwarder.
package ctxkey

const (
	// RequestId stores the request id: the inbound X-Request-Id header when
	// present, otherwise a random UUID generated by middleware.RequestID.
	RequestId = "X-Request-Id"

	// AppFamily stores the resolved model.AppFamily for the current request.
	AppFamily = "app-family"

	// Provider stores the *model.Provider selected by the router for this attempt.
	Provider = "provider"

	// RequestModel stores the client-sent model name, before any adapter rewrite.
	RequestModel = "request-model"

	// KeyRequestBody caches the raw request body bytes so handlers can re-read it.
	KeyRequestBody = "request-body"

	// ClientRequestPayloadLogged marks that the inbound payload has already been logged once.
	ClientRequestPayloadLogged = "client-request-payload-logged"

	// SessionId stores the optional client-supplied session identifier used for log correlation.
	SessionId = "session-id"

	// StartTime stores the time.Time the handler began processing the request.
	StartTime = "start-time"
)
