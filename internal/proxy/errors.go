package proxy

import "fmt"

// ErrorKind classifies why a proxy call failed (spec §4.A failure
// semantics). Transport and Timeout are retried; Protocol, Remote, and
// SizeLimit are not.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindTimeout   ErrorKind = "timeout"
	KindProtocol  ErrorKind = "protocol"
	KindRemote    ErrorKind = "remote"
	KindSizeLimit ErrorKind = "size_limit"
)

// CallError wraps every failure a Proxy call can produce.
type CallError struct {
	Kind  ErrorKind
	Cause error
}

func (e *CallError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("proxy call failed: %s", e.Kind)
	}
	return fmt.Sprintf("proxy call failed (%s): %v", e.Kind, e.Cause)
}

func (e *CallError) Unwrap() error { return e.Cause }

func newCallError(kind ErrorKind, cause error) *CallError {
	return &CallError{Kind: kind, Cause: cause}
}

// retryable reports whether the caller should retry this failure, per
// spec §4.A: "Transport/timeout/5xx are retried; protocol... remote...
// and size-limit are not."
func (e *CallError) retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindTimeout
}
