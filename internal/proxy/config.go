package proxy

import (
	"time"

	"github.com/meshfabric/core/internal/wire"
)

// Config carries the enumerated proxy kwargs from spec §4.A, with their
// documented defaults.
type Config struct {
	Timeout                time.Duration
	RetryCount              int
	RetryDelay              time.Duration
	RetryBackoff            float64
	CustomHeaders           map[string]string
	AuthRequired            bool
	Accepts                 []string
	ContentType             string
	MaxResponseSize         int64
	Streaming               bool
	StreamTimeout           time.Duration
	BufferSize              int
	SessionRequired         bool
	Stateful                bool
	AutoSessionManagement   bool
}

// DefaultConfig returns the proxy defaults enumerated in spec §4.A.
func DefaultConfig() Config {
	return Config{
		Timeout:               30 * time.Second,
		RetryCount:            1,
		RetryDelay:            1 * time.Second,
		RetryBackoff:          2.0,
		CustomHeaders:         map[string]string{},
		AuthRequired:          false,
		Accepts:               []string{"application/json"},
		ContentType:           "application/json",
		MaxResponseSize:       10 * 1024 * 1024,
		Streaming:             false,
		StreamTimeout:         300 * time.Second,
		BufferSize:            4096,
		SessionRequired:       false,
		Stateful:              false,
		AutoSessionManagement: true,
	}
}

// ConfigFromKwargs builds a Config from wire.DependencyKwargs, applying
// defaults for any zero-value field not explicitly set.
func ConfigFromKwargs(kw wire.DependencyKwargs) Config {
	cfg := DefaultConfig()
	if kw.Timeout > 0 {
		cfg.Timeout = secondsToDuration(kw.Timeout)
	}
	if kw.RetryCount > 0 {
		cfg.RetryCount = kw.RetryCount
	}
	if kw.RetryDelay > 0 {
		cfg.RetryDelay = secondsToDuration(kw.RetryDelay)
	}
	if kw.RetryBackoff > 0 {
		cfg.RetryBackoff = kw.RetryBackoff
	}
	if len(kw.CustomHeaders) > 0 {
		cfg.CustomHeaders = kw.CustomHeaders
	}
	cfg.AuthRequired = kw.AuthRequired
	if len(kw.Accepts) > 0 {
		cfg.Accepts = kw.Accepts
	}
	if kw.ContentType != "" {
		cfg.ContentType = kw.ContentType
	}
	if kw.MaxResponseSize > 0 {
		cfg.MaxResponseSize = kw.MaxResponseSize
	}
	cfg.Streaming = kw.Streaming
	if kw.StreamTimeout > 0 {
		cfg.StreamTimeout = secondsToDuration(kw.StreamTimeout)
	}
	if kw.BufferSize > 0 {
		cfg.BufferSize = kw.BufferSize
	}
	cfg.SessionRequired = kw.SessionRequired
	cfg.Stateful = kw.Stateful
	if kw.AutoSessionMgmt != nil {
		cfg.AutoSessionManagement = *kw.AutoSessionMgmt
	}
	return cfg
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
