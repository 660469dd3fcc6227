package voiceai

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("voice session is not connected")
	ErrSessionTimeout = errors.New("voice session did not become ready in time")
	ErrSessionClosed  = errors.New("voice session closed by provider")
	ErrUnknownCall    = errors.New("unknown or stale function call id")
	ErrInvalidAudio   = errors.New("audio frame is not valid base64")
	ErrUnknownTool    = errors.New("unknown tool")

	ErrUnsupportedVoice = errors.New("unsupported voice")
)

type ConfigErrorKind string

const (
	KindMissingAPIKey   ConfigErrorKind = "missing_api_key"
	KindUnknownProvider ConfigErrorKind = "unknown_provider"
	KindCreationFailed  ConfigErrorKind = "creation_failed"
)

// ConfigError is the single error type for provider resolution and construction.
type ConfigError struct {
	Kind     ConfigErrorKind
	Provider string
	Err      error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("voice provider %q: %s", e.Provider, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is a ConfigError of the given kind.
func IsConfigError(err error, kind ConfigErrorKind) bool {
	var ce *ConfigError
	return errors.As(err, &ce) && ce.Kind == kind
}

// ProviderError is an error event reported by the backend.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}
