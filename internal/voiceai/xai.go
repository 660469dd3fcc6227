package voiceai

import "net/http"

const (
	xaiEndpoint = "wss://api.x.ai/v1/realtime"
	xaiVoice    = "Ara"
)

func xaiDialect() dialect {
	return dialect{
		provider:     ProviderXAI,
		endpoint:     xaiEndpoint,
		defaultVoice: xaiVoice,
		caps: Capabilities{
			Voices:         []string{"Ara", "Rex", "Sal", "Eve", "Leo"},
			AudioFormats:   []string{"pcm16", "g711_ulaw", "g711_alaw"},
			SampleRates:    []int{8000, 16000, 22050, 24000, 32000, 44100, 48000},
			WebSearch:      true,
			XSearch:        true,
			FileSearch:     true,
			AutoTranscribe: true,
			CustomTools:    true,
		},
		header: func(apiKey string) http.Header {
			h := http.Header{}
			h.Set("Authorization", "Bearer "+apiKey)
			return h
		},
		session: func(cfg SessionConfig) map[string]any {
			format := map[string]any{"type": xaiFormat(cfg.AudioFormat), "rate": cfg.SampleRate}
			tools := functionTools(cfg.Tools)
			if cfg.BuiltinSearch {
				tools = append(tools, map[string]any{"type": "web_search"}, map[string]any{"type": "x_search"})
				if len(cfg.VectorStoreIDs) > 0 {
					tools = append(tools, map[string]any{"type": "file_search", "vector_store_ids": cfg.VectorStoreIDs})
				}
			}
			s := map[string]any{
				"instructions":   cfg.ComposeInstructions(),
				"voice":          cfg.Voice,
				"turn_detection": map[string]any{"type": "server_vad"},
				"audio": map[string]any{
					"input":  map[string]any{"format": format},
					"output": map[string]any{"format": format},
				},
			}
			if len(tools) > 0 {
				s["tools"] = tools
			}
			return s
		},
	}
}

func xaiFormat(f string) string {
	switch f {
	case "g711_ulaw":
		return "audio/pcmu"
	case "g711_alaw":
		return "audio/pcma"
	}
	return "audio/pcm"
}
