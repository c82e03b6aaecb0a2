package errors

// Error codes for the bridge contracts. Keep stable; used across adapters and bridge.
const (
	ErrCodePortClosed          = "portbridge.port_closed"
	ErrCodeBridgeClosed        = "portbridge.bridge_closed"
	ErrCodeEngineNotConfigured = "portbridge.engine_not_configured"
	ErrCodeSendFailed          = "portbridge.send_failed"
	ErrCodeSubscribeFailed     = "portbridge.subscribe_failed"
	ErrCodeInvocationTimeout   = "portbridge.invocation_timeout"
	ErrCodeInvocationCanceled  = "portbridge.invocation_canceled"
	ErrCodeCorrelationFailed   = "portbridge.correlation_failed"
	ErrCodeSerializationFailed = "portbridge.serialization_failed"
	ErrCodeConnectFailed       = "portbridge.connect_failed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrPortClosed          = Code(ErrCodePortClosed)
	ErrBridgeClosed        = Code(ErrCodeBridgeClosed)
	ErrEngineNotConfigured = Code(ErrCodeEngineNotConfigured)
	ErrSendFailed          = Code(ErrCodeSendFailed)
	ErrSubscribeFailed     = Code(ErrCodeSubscribeFailed)
	ErrInvocationTimeout   = Code(ErrCodeInvocationTimeout)
	ErrInvocationCanceled  = Code(ErrCodeInvocationCanceled)
	ErrCorrelationFailed   = Code(ErrCodeCorrelationFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrConnectFailed       = Code(ErrCodeConnectFailed)
)
