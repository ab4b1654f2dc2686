package stream

import "fmt"

// ConfigurationError indicates the live feed cannot start for a chain
// because required configuration is missing. Callers log it and continue;
// it never aborts the pipeline.
type ConfigurationError struct {
	Chain  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("stream configuration for %s: %s", e.Chain, e.Reason)
}

// ConnectionError wraps a transport failure on an established or
// in-progress connection.
type ConnectionError struct {
	Chain string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("stream connection for %s: %v", e.Chain, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
