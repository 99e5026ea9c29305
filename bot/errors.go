package bot

import (
	"errors"
	"fmt"
)

var (
	ErrProtocol      = errors.New("bot: protocol error")
	ErrTransport     = errors.New("bot: transport error")
	ErrConfiguration = errors.New("bot: configuration error")
	ErrAlreadyOpen   = errors.New("bot: client already open")
)

// ProtocolError reports a frame the gateway sent that the client cannot
// accept: a control reply with a non-zero code, or a malformed frame.
type ProtocolError struct {
	Code    int
	Reason  string
	Payload []byte
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("protocol error: code %d: %s: %s", e.Code, e.Reason, e.Payload)
	}
	return fmt.Sprintf("protocol error: %s: %s", e.Reason, e.Payload)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// TransportError wraps a connection-level failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// ConfigError is returned by Open before any connection attempt.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }
