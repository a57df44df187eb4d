package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// 对话后端。
const (
	BackendProxy = "proxy"
	BackendArk   = "ark"
)

// 情绪分析引擎。
const (
	EngineKeyword    = "keyword"
	EngineClassifier = "classifier"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Proxy    ProxyConfig
	Chat     ChatConfig
	Analysis AnalysisConfig
	AI       AIConfig
	Store    StoreConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr      string
	StaticDir string
	LogLevel  string
	LogFormat string
}

// ProxyConfig 描述补全接口代理配置。
type ProxyConfig struct {
	Addr        string
	UpstreamURL string
	APIVersion  string
	Timeout     time.Duration

	// RateLimit 为每秒转发到上游的请求数，0 表示不限流。
	RateLimit float64
	Burst     int
}

// ChatConfig 选择并调整对话传输方式。
type ChatConfig struct {
	Backend   string
	ProxyURL  string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnalysisConfig 调整分块标注与情绪轨迹。
type AnalysisConfig struct {
	Engine             string
	ChunkWords         int
	CarryWords         int
	TrajectoryCapacity int
	GraphWidth         float64
	GraphHeight        float64
}

// StoreConfig 指定凭据数据库位置。
type StoreConfig struct {
	Path string
}

// AIConfig 描述大模型相关配置，供分类引擎与 ark 对话后端使用。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

var defaults = map[string]any{
	"PORT":                 "8000",
	"STATIC_DIR":           "static",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "json",
	"PROXY_PORT":           "8001",
	"ANTHROPIC_BASE_URL":   "https://api.anthropic.com",
	"ANTHROPIC_VERSION":    "2023-06-01",
	"PROXY_TIMEOUT":        "120s",
	"PROXY_RATE_LIMIT":     "5",
	"PROXY_BURST":          "10",
	"CHAT_BACKEND":         BackendProxy,
	"PROXY_URL":            "http://localhost:8001",
	"CHAT_MODEL":           "claude-3-5-sonnet-20241022",
	"CHAT_MAX_TOKENS":      "1000",
	"CHAT_TIMEOUT":         "120s",
	"ANALYSIS_ENGINE":      EngineKeyword,
	"ANALYSIS_CHUNK_WORDS": "15",
	"ANALYSIS_CARRY_WORDS": "5",
	"TRAJECTORY_CAPACITY":  "20",
	"GRAPH_WIDTH":          "300",
	"GRAPH_HEIGHT":         "100",
	"CREDENTIAL_DB":        "data/synesthesia.db",
	"ARK_BASE_URL":         "https://ark.cn-beijing.volces.com/api/v3",
	"ARK_REGION":           "cn-beijing",
}

// Load 读取工作目录下可选的 synesthesia.yaml，并以环境变量覆盖。
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("synesthesia")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper 从已有的 viper 实例解析配置。
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	r := reader{v: v}
	cfg := &Config{
		Server: ServerConfig{
			Addr:      r.addr("PORT"),
			StaticDir: r.str("STATIC_DIR"),
			LogLevel:  r.str("LOG_LEVEL"),
			LogFormat: r.str("LOG_FORMAT"),
		},
		Proxy: ProxyConfig{
			Addr:        r.addr("PROXY_PORT"),
			UpstreamURL: strings.TrimRight(r.str("ANTHROPIC_BASE_URL"), "/"),
			APIVersion:  r.str("ANTHROPIC_VERSION"),
			Timeout:     r.duration("PROXY_TIMEOUT"),
			RateLimit:   r.nonNegativeFloat("PROXY_RATE_LIMIT"),
			Burst:       r.positiveInt("PROXY_BURST"),
		},
		Chat: ChatConfig{
			Backend:   strings.ToLower(r.str("CHAT_BACKEND")),
			ProxyURL:  strings.TrimRight(r.str("PROXY_URL"), "/"),
			Model:     r.str("CHAT_MODEL"),
			MaxTokens: r.positiveInt("CHAT_MAX_TOKENS"),
			Timeout:   r.duration("CHAT_TIMEOUT"),
		},
		Analysis: AnalysisConfig{
			Engine:             strings.ToLower(r.str("ANALYSIS_ENGINE")),
			ChunkWords:         r.positiveInt("ANALYSIS_CHUNK_WORDS"),
			CarryWords:         r.nonNegativeInt("ANALYSIS_CARRY_WORDS"),
			TrajectoryCapacity: r.positiveInt("TRAJECTORY_CAPACITY"),
			GraphWidth:         r.positiveFloat("GRAPH_WIDTH"),
			GraphHeight:        r.positiveFloat("GRAPH_HEIGHT"),
		},
		AI: AIConfig{
			APIKey:      r.str("ARK_API_KEY"),
			AccessKey:   r.str("ARK_ACCESS_KEY"),
			SecretKey:   r.str("ARK_SECRET_KEY"),
			Model:       r.str("ARK_MODEL"),
			BaseURL:     r.str("ARK_BASE_URL"),
			Region:      r.str("ARK_REGION"),
			Temperature: r.optionalFloat("ARK_TEMPERATURE"),
			TopP:        r.optionalFloat("ARK_TOP_P"),
			MaxTokens:   r.optionalInt("ARK_MAX_TOKENS"),
		},
		Store: StoreConfig{
			Path: r.str("CREDENTIAL_DB"),
		},
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Chat.Backend {
	case BackendProxy, BackendArk:
	default:
		return fmt.Errorf("invalid CHAT_BACKEND value %q", c.Chat.Backend)
	}
	switch c.Analysis.Engine {
	case EngineKeyword, EngineClassifier:
	default:
		return fmt.Errorf("invalid ANALYSIS_ENGINE value %q", c.Analysis.Engine)
	}
	if c.Analysis.CarryWords >= c.Analysis.ChunkWords {
		return fmt.Errorf("invalid ANALYSIS_CARRY_WORDS value %d: must be below ANALYSIS_CHUNK_WORDS (%d)",
			c.Analysis.CarryWords, c.Analysis.ChunkWords)
	}
	if c.Store.Path == "" {
		return errors.New("invalid CREDENTIAL_DB value \"\"")
	}
	return nil
}

// Enabled 表示是否提供了必需的密钥与模型。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 根据配置创建 Ark 大模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing: set ARK_MODEL and ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

// reader 记录第一个解析错误。
type reader struct {
	v   *viper.Viper
	err error
}

func (r *reader) str(key string) string {
	return strings.TrimSpace(r.v.GetString(key))
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// addr 允许传入 "8000"、":8000" 或 "127.0.0.1:8000"。
func (r *reader) addr(key string) string {
	port := r.str(key)
	if strings.Contains(port, ":") {
		return port
	}
	if port == "" || strings.Contains(port, " ") {
		r.fail(fmt.Errorf("invalid %s value: %q", key, port))
		return ""
	}
	return ":" + port
}

func (r *reader) integer(key string) (int, bool) {
	raw := r.str(key)
	val, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s value %q: %w", key, raw, err))
		return 0, false
	}
	return val, true
}

func (r *reader) positiveInt(key string) int {
	val, ok := r.integer(key)
	if ok && val < 1 {
		r.fail(fmt.Errorf("invalid %s value %q: must be positive", key, r.str(key)))
	}
	return val
}

func (r *reader) nonNegativeInt(key string) int {
	val, ok := r.integer(key)
	if ok && val < 0 {
		r.fail(fmt.Errorf("invalid %s value %q: must not be negative", key, r.str(key)))
	}
	return val
}

func (r *reader) float(key string) (float64, bool) {
	raw := r.str(key)
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s value %q: %w", key, raw, err))
		return 0, false
	}
	return val, true
}

func (r *reader) positiveFloat(key string) float64 {
	val, ok := r.float(key)
	if ok && val <= 0 {
		r.fail(fmt.Errorf("invalid %s value %q: must be positive", key, r.str(key)))
	}
	return val
}

func (r *reader) nonNegativeFloat(key string) float64 {
	val, ok := r.float(key)
	if ok && val < 0 {
		r.fail(fmt.Errorf("invalid %s value %q: must not be negative", key, r.str(key)))
	}
	return val
}

func (r *reader) duration(key string) time.Duration {
	raw := r.str(key)
	val, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s value %q: %w", key, raw, err))
		return 0
	}
	return val
}

func (r *reader) optionalFloat(key string) *float64 {
	raw := r.str(key)
	if raw == "" {
		return nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s value %q: %w", key, raw, err))
		return nil
	}
	return &val
}

func (r *reader) optionalInt(key string) *int {
	raw := r.str(key)
	if raw == "" {
		return nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s value %q: %w", key, raw, err))
		return nil
	}
	return &val
}
