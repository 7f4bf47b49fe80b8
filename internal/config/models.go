package config

import (
	"time"

	"github.com/mikey/phishing-detector/internal/classifier"
	"github.com/mikey/phishing-detector/internal/detector"
	"github.com/mikey/phishing-detector/internal/trainer"
)

// NarratorConfig selects the LLM used to narrate predictions
type NarratorConfig struct {
	Provider string
	Timeout  time.Duration
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// ServerConfig holds the settings of the filter front ends
type ServerConfig struct {
	FilterType      string
	ListenAddress   string
	PostfixAddress  string
	MilterAddress   string
	ReinjectAddress string
	BlockPhishing   bool
	SubjectPrefix   string
	MaxMessageBytes int64
	RateLimit       float64
	RateBurst       int
	Headers         HeaderNames
}

// HeaderNames are the headers added to filtered mail
type HeaderNames struct {
	Verdict    string
	Confidence string
	Terms      string
	Version    string
}

// CacheConfig holds prediction cache settings
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisPrefix      string
}

// GetNarrator returns the narrator configuration
func (c *Config) GetNarrator() NarratorConfig {
	timeout, err := c.GetDuration("narrator.timeout")
	if err != nil {
		timeout = 20 * time.Second
	}
	return NarratorConfig{
		Provider: c.GetString("narrator.provider"),
		Timeout:  timeout,
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetServer returns the filter server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:      c.GetString("server.filter_type"),
		ListenAddress:   c.GetString("server.listen_address"),
		PostfixAddress:  c.GetString("server.postfix_address"),
		MilterAddress:   c.GetString("server.milter_address"),
		ReinjectAddress: c.GetString("server.reinject_address"),
		BlockPhishing:   c.GetBool("server.block_phishing"),
		SubjectPrefix:   c.GetString("server.subject_prefix"),
		MaxMessageBytes: c.GetInt64("server.max_message_bytes"),
		RateLimit:       c.GetFloat64("server.rate_limit"),
		RateBurst:       c.GetInt("server.rate_burst"),
		Headers: HeaderNames{
			Verdict:    c.GetString("server.headers.verdict"),
			Confidence: c.GetString("server.headers.confidence"),
			Terms:      c.GetString("server.headers.terms"),
			Version:    c.GetString("server.headers.version"),
		},
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, err
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
		RedisAddr:        c.GetString("cache.redis_addr"),
		RedisPassword:    c.GetString("cache.redis_password"),
		RedisDB:          c.GetInt("cache.redis_db"),
		RedisPrefix:      c.GetString("cache.redis_prefix"),
	}, nil
}

// GetTraining returns the trainer configuration
func (c *Config) GetTraining() trainer.Config {
	return trainer.Config{
		TestSize:    c.GetFloat64("training.test_size"),
		Seed:        c.GetInt64("training.seed"),
		MaxFeatures: c.GetInt("vectorizer.max_features"),
		Fit: classifier.FitOptions{
			MaxIter:      c.GetInt("training.max_iter"),
			LearningRate: c.GetFloat64("training.learning_rate"),
			C:            c.GetFloat64("training.c"),
			Tolerance:    c.GetFloat64("training.tolerance"),
		},
		PreprocessedDir: c.GetString("training.preprocessed_dir"),
	}
}

// GetDetector returns the inference service options
func (c *Config) GetDetector() (detector.Options, error) {
	cache, err := c.GetCache()
	if err != nil {
		return detector.Options{}, err
	}
	return detector.Options{
		TopFeatures:     c.GetInt("model.top_features"),
		GlobalTerms:     c.GetInt("model.global_terms"),
		CacheEnabled:    cache.Enabled,
		CacheTTL:        cache.TTL,
		NarratorTimeout: c.GetNarrator().Timeout,
	}, nil
}
