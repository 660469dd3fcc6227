package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/voxroom/internal/app/convo"
	"github.com/dkeye/voxroom/internal/voiceai"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type RoomsConfig struct {
	DefaultCapacity int           `mapstructure:"default_capacity"`
	MaxCapacity     int           `mapstructure:"max_capacity"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
	StoreTTL        time.Duration `mapstructure:"store_ttl"`
	// Policy is "kick" or "drop" for peers whose send queue is full.
	Policy string `mapstructure:"policy"`
}

type AIConfig struct {
	voiceai.FactoryConfig `mapstructure:",squash"`
	SessionTimeout        time.Duration `mapstructure:"session_timeout"`
	SystemPrompt          string        `mapstructure:"system_prompt"`
}

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	StaticPath  string        `mapstructure:"static_path"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	JoinTimeout time.Duration `mapstructure:"join_timeout"`
	SendBuffer  int           `mapstructure:"send_buffer"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
	Secret      string        `mapstructure:"secret"`
	LogLevel    string        `mapstructure:"log_level"`
	RedisURL    string        `mapstructure:"redis_url"`
	DatabaseURL string        `mapstructure:"database_url"`

	Rooms      RoomsConfig  `mapstructure:"rooms"`
	AI         AIConfig     `mapstructure:"ai"`
	Context    convo.Config `mapstructure:"context"`
	ICEServers []ICEServer  `mapstructure:"ice_servers"`
}

// WebRTCServers converts the configured ICE servers for pion and the browser.
func (c *Config) WebRTCServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("join_timeout", "15s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("rate_limit", 20)
	v.SetDefault("rate_window", "1s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("rooms.default_capacity", 8)
	v.SetDefault("rooms.max_capacity", 16)
	v.SetDefault("rooms.idle_ttl", "30m")
	v.SetDefault("rooms.janitor_interval", "1m")
	v.SetDefault("rooms.store_ttl", "24h")
	v.SetDefault("rooms.policy", "kick")

	v.SetDefault("ai.connect_timeout", "10s")
	v.SetDefault("ai.tool_timeout", "5s")
	v.SetDefault("ai.session_timeout", "15s")

	d := convo.DefaultConfig()
	v.SetDefault("context.max_tokens", d.MaxTokens)
	v.SetDefault("context.target_tokens", d.TargetTokens)
	v.SetDefault("context.max_messages", d.MaxMessages)
	v.SetDefault("context.auto_summary", d.AutoSummary)
	v.SetDefault("context.near_limit_ratio", d.NearLimitRatio)

	v.SetDefault("ice_servers", []map[string]any{{"urls": []string{"stun:stun.l.google.com:19302"}}})
}

// LoadEnv reads .env.local and .env into the process environment without
// overriding variables that are already set.
func LoadEnv() {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err == nil {
			log.Debug().Str("module", "config").Str("file", f).Msg("loaded env file")
		}
	}
}

// Load reads file, or config/config.<CONFIG_ENV>.yaml when file is empty.
// VOXROOM_* environment variables override file values.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if file == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	v.SetEnvPrefix("voxroom")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Rooms.MaxCapacity < cfg.Rooms.DefaultCapacity {
		return nil, fmt.Errorf("rooms.max_capacity %d is below rooms.default_capacity %d",
			cfg.Rooms.MaxCapacity, cfg.Rooms.DefaultCapacity)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}
