package voiceai

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	EnvProvider  = "VOICE_PROVIDER"
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvXAIKey    = "XAI_API_KEY"
)

var credentialEnv = map[ProviderType]string{
	ProviderOpenAI: EnvOpenAIKey,
	ProviderXAI:    EnvXAIKey,
}

// FactoryConfig is the configured side of provider selection. Empty fields
// fall through to the environment and then to defaults.
type FactoryConfig struct {
	Provider       string                  `mapstructure:"provider"`
	APIKey         string                  `mapstructure:"api_key"`
	APIKeys        map[ProviderType]string `mapstructure:"api_keys"`
	Model          string                  `mapstructure:"model"`
	Endpoint       string                  `mapstructure:"endpoint"`
	ConnectTimeout time.Duration           `mapstructure:"connect_timeout"`
	ToolTimeout    time.Duration           `mapstructure:"tool_timeout"`
}

type Options struct {
	Getenv   func(string) string
	Dialer   Dialer
	Handlers Handlers
	Tools    ToolExecutor
}

type Result struct {
	Provider        Provider
	Type            ProviderType
	FromEnvironment bool
}

// ResolveType picks the provider type: explicit config, then VOICE_PROVIDER, then the default.
func ResolveType(cfg FactoryConfig, getenv func(string) string) (ProviderType, bool, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if raw := strings.TrimSpace(cfg.Provider); raw != "" {
		t := ParseProviderType(raw)
		if !t.Valid() {
			return "", false, &ConfigError{Kind: KindUnknownProvider, Provider: raw}
		}
		return t, false, nil
	}
	if raw := strings.TrimSpace(getenv(EnvProvider)); raw != "" {
		t := ParseProviderType(raw)
		if t.Valid() {
			return t, true, nil
		}
		log.Warn().Str("module", "voiceai").Str("value", raw).
			Str("fallback", string(DefaultProvider)).Msg("invalid " + EnvProvider + ", using default")
	}
	return DefaultProvider, false, nil
}

func resolveKey(t ProviderType, cfg FactoryConfig, getenv func(string) string) string {
	if k := strings.TrimSpace(cfg.APIKey); k != "" {
		return k
	}
	if k := strings.TrimSpace(cfg.APIKeys[t]); k != "" {
		return k
	}
	return strings.TrimSpace(getenv(credentialEnv[t]))
}

func dialectFor(t ProviderType) dialect {
	if t == ProviderXAI {
		return xaiDialect()
	}
	return openAIDialect()
}

// NewProvider resolves type and credential and builds an unconnected provider.
func NewProvider(cfg FactoryConfig, opts Options) (Result, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	t, fromEnv, err := ResolveType(cfg, opts.Getenv)
	if err != nil {
		return Result{}, err
	}

	key := resolveKey(t, cfg, opts.Getenv)
	if key == "" {
		return Result{}, &ConfigError{
			Kind:     KindMissingAPIKey,
			Provider: string(t),
			Err:      fmt.Errorf("set %s or configure an api key", credentialEnv[t]),
		}
	}

	d := dialectFor(t)
	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return Result{}, &ConfigError{Kind: KindCreationFailed, Provider: string(t), Err: err}
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return Result{}, &ConfigError{
				Kind: KindCreationFailed, Provider: string(t),
				Err: fmt.Errorf("endpoint scheme %q is not ws or wss", u.Scheme),
			}
		}
		d.endpoint = cfg.Endpoint
	}

	log.Info().Str("module", "voiceai").Str("provider", string(t)).
		Bool("from_env", fromEnv).Msg("voice provider selected")

	return Result{
		Provider:        newRealtimeSession(d, key, cfg, opts),
		Type:            t,
		FromEnvironment: fromEnv,
	}, nil
}

// Describe lists the capabilities of every supported provider and whether a credential is present.
func Describe(cfg FactoryConfig, getenv func(string) string) []ProviderInfo {
	if getenv == nil {
		getenv = os.Getenv
	}
	out := make([]ProviderInfo, 0, 2)
	for _, t := range []ProviderType{ProviderOpenAI, ProviderXAI} {
		out = append(out, ProviderInfo{
			Type:         t,
			Configured:   resolveKey(t, cfg, getenv) != "",
			Capabilities: dialectFor(t).caps,
		})
	}
	return out
}

type ProviderInfo struct {
	Type         ProviderType `json:"type"`
	Configured   bool         `json:"configured"`
	Capabilities Capabilities `json:"capabilities"`
}
