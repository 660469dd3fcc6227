package voiceai

import "net/http"

const (
	openAIEndpoint = "wss://api.openai.com/v1/realtime"
	openAIModel    = "gpt-4o-realtime-preview"
	openAIVoice    = "alloy"
)

func openAIDialect() dialect {
	return dialect{
		provider:     ProviderOpenAI,
		endpoint:     openAIEndpoint,
		defaultModel: openAIModel,
		defaultVoice: openAIVoice,
		caps: Capabilities{
			Voices:         []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"},
			AudioFormats:   []string{"pcm16", "g711_ulaw", "g711_alaw"},
			SampleRates:    []int{24000},
			AutoTranscribe: true,
			CustomTools:    true,
		},
		header: func(apiKey string) http.Header {
			h := http.Header{}
			h.Set("Authorization", "Bearer "+apiKey)
			h.Set("OpenAI-Beta", "realtime=v1")
			return h
		},
		session: func(cfg SessionConfig) map[string]any {
			s := map[string]any{
				"modalities":                []string{"audio", "text"},
				"instructions":              cfg.ComposeInstructions(),
				"voice":                     cfg.Voice,
				"input_audio_format":        cfg.AudioFormat,
				"output_audio_format":       cfg.AudioFormat,
				"input_audio_transcription": map[string]any{"model": "whisper-1"},
				"turn_detection":            map[string]any{"type": "server_vad"},
				"temperature":               cfg.Temperature,
			}
			if len(cfg.Tools) > 0 {
				s["tools"] = functionTools(cfg.Tools)
				s["tool_choice"] = "auto"
			}
			return s
		},
	}
}
