package voiceai

import (
	"net/http"
	"net/url"
)

// dialect holds everything that differs between backends speaking the realtime event protocol.
type dialect struct {
	provider     ProviderType
	endpoint     string
	defaultModel string
	defaultVoice string
	caps         Capabilities
	header       func(apiKey string) http.Header
	session      func(cfg SessionConfig) map[string]any
}

func (d dialect) url(model string) (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}
	if model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func functionTools(tools []ToolSpec) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"type":        "function",
			"name":        t.Name,
			"description": t.Description,
			"parameters":  params,
		})
	}
	return out
}
