package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server        ServerConfig
	Redis         RedisConfig
	JWT           JWTConfig
	RateLimit     RateLimitConfig
	Credits       CreditsConfig
	Groq          GroqConfig
	Replicate     ReplicateConfig
	MiniMax       MiniMaxConfig
	AssemblyAI    AssemblyAIConfig
	Renderer      RendererConfig
	R2            R2Config
	Zitadel       ZitadelConfig
	Gateway       GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	StoriesPerHour  int
	SegmentsPerHour int
	VideosPerHour   int
}

// CreditsConfig controls the credit ledger. RefundOnFailure decides whether
// a terminally failed story- or video-level stage returns its debit; the
// default keeps the non-refund behavior.
type CreditsConfig struct {
	InitialGrant    int
	RefundOnFailure bool
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type ReplicateConfig struct {
	APIToken string
	BaseURL  string
	Model    string
}

type MiniMaxConfig struct {
	APIKey  string
	GroupID string
	BaseURL string
	Model   string
}

type AssemblyAIConfig struct {
	APIKey  string
	BaseURL string
}

// RendererConfig points at the compositing microservice that turns audio,
// captions and segment images into a playable MP4. Optional: without it the
// pipeline stops at audio + captions.
type RendererConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GROQ_API_KEY")
	readSecret("REPLICATE_API_TOKEN")
	readSecret("MINIMAX_API_KEY")
	readSecret("ASSEMBLYAI_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("credits.initial_grant", "CREDITS_INITIAL_GRANT")
	_ = viper.BindEnv("credits.refund_on_failure", "CREDITS_REFUND_ON_FAILURE")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("replicate.api_token", "REPLICATE_API_TOKEN")
	_ = viper.BindEnv("replicate.base_url", "REPLICATE_BASE_URL")
	_ = viper.BindEnv("replicate.model", "REPLICATE_MODEL")
	_ = viper.BindEnv("minimax.api_key", "MINIMAX_API_KEY")
	_ = viper.BindEnv("minimax.group_id", "MINIMAX_GROUP_ID")
	_ = viper.BindEnv("minimax.base_url", "MINIMAX_BASE_URL")
	_ = viper.BindEnv("minimax.model", "MINIMAX_MODEL")
	_ = viper.BindEnv("assemblyai.api_key", "ASSEMBLYAI_API_KEY")
	_ = viper.BindEnv("assemblyai.base_url", "ASSEMBLYAI_BASE_URL")
	_ = viper.BindEnv("renderer.service_url", "RENDERER_SERVICE_URL")
	_ = viper.BindEnv("renderer.timeout", "RENDERER_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.stories_per_hour", 20)
	viper.SetDefault("ratelimit.segments_per_hour", 60)
	viper.SetDefault("ratelimit.videos_per_hour", 10)
	viper.SetDefault("credits.initial_grant", 10)
	viper.SetDefault("credits.refund_on_failure", false)

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Replicate defaults
	viper.SetDefault("replicate.base_url", "https://api.replicate.com/v1")
	viper.SetDefault("replicate.model", "black-forest-labs/flux-schnell")

	// MiniMax defaults
	viper.SetDefault("minimax.base_url", "https://api.minimax.chat")
	viper.SetDefault("minimax.model", "speech-01-turbo")

	// AssemblyAI defaults
	viper.SetDefault("assemblyai.base_url", "https://api.assemblyai.com")

	// Renderer defaults
	viper.SetDefault("renderer.timeout", 300)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			StoriesPerHour:  viper.GetInt("ratelimit.stories_per_hour"),
			SegmentsPerHour: viper.GetInt("ratelimit.segments_per_hour"),
			VideosPerHour:   viper.GetInt("ratelimit.videos_per_hour"),
		},
		Credits: CreditsConfig{
			InitialGrant:    viper.GetInt("credits.initial_grant"),
			RefundOnFailure: viper.GetBool("credits.refund_on_failure"),
		},
		Groq: GroqConfig{
			APIKey:  viper.GetString("groq.api_key"),
			BaseURL: viper.GetString("groq.base_url"),
			Model:   viper.GetString("groq.model"),
		},
		Replicate: ReplicateConfig{
			APIToken: viper.GetString("replicate.api_token"),
			BaseURL:  viper.GetString("replicate.base_url"),
			Model:    viper.GetString("replicate.model"),
		},
		MiniMax: MiniMaxConfig{
			APIKey:  viper.GetString("minimax.api_key"),
			GroupID: viper.GetString("minimax.group_id"),
			BaseURL: viper.GetString("minimax.base_url"),
			Model:   viper.GetString("minimax.model"),
		},
		AssemblyAI: AssemblyAIConfig{
			APIKey:  viper.GetString("assemblyai.api_key"),
			BaseURL: viper.GetString("assemblyai.base_url"),
		},
		Renderer: RendererConfig{
			ServiceURL: viper.GetString("renderer.service_url"),
			Timeout:    viper.GetInt("renderer.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
