package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Brief     BriefConfig
	Notify    NotifyConfig
	Site      SiteConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	brief, err := loadBriefConfig()
	if err != nil {
		return nil, err
	}

	notify, err := loadNotifyConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		RateLimit: rateLimit,
		Storage:   storage,
		Brief:     brief,
		Notify:    notify,
		Site:      loadSiteConfig(),
		Log:       loadLogConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := parseListEnv("CORS_ALLOWED_ORIGINS")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// Provider names accepted by LLM_PROVIDER.
const (
	ProviderAnthropic = "anthropic"
	ProviderArk       = "ark"
	ProviderMock      = "mock"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string

	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	Timeout            time.Duration
	ReplyMaxTokens     int
	ReplyTemperature   float64
	ExtractMaxTokens   int
	HistoryLimit       int
	StatelessTurnLimit int
}

// Enabled 表示是否提供了当前 provider 必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderMock:
		return true
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	default:
		return c.AnthropicAPIKey != ""
	}
}

// MissingCredential names the environment variable an operator has to set.
func (c AIConfig) MissingCredential() string {
	if c.Provider == ProviderArk {
		return "ARK_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// NewArkChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewArkChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	maxTokens := c.ReplyMaxTokens
	temperature := float32(c.ReplyTemperature)
	timeout := c.Timeout

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		Timeout:     &timeout,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderAnthropic))
	switch provider {
	case ProviderAnthropic, ProviderArk, ProviderMock:
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	timeout, err := parseDurationMsEnv("LLM_TIMEOUT_MS", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	replyMaxTokens, err := parseIntEnv("CHAT_REPLY_MAX_TOKENS", 220)
	if err != nil {
		return AIConfig{}, err
	}

	temperature := 0.2
	if override, err := parseOptionalFloatEnv("CHAT_REPLY_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	extractMaxTokens, err := parseIntEnv("BRIEF_EXTRACT_MAX_TOKENS", 800)
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit, err := parseIntEnv("CHAT_HISTORY_LIMIT", 20)
	if err != nil {
		return AIConfig{}, err
	}
	if historyLimit < 1 {
		historyLimit = 1
	}

	return AIConfig{
		Provider:           provider,
		AnthropicAPIKey:    strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel:     getEnvOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		AnthropicBaseURL:   strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")),
		APIKey:             strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:          strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:          strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:              strings.TrimSpace(os.Getenv("Model")),
		BaseURL:            getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:             getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Timeout:            timeout,
		ReplyMaxTokens:     replyMaxTokens,
		ReplyTemperature:   temperature,
		ExtractMaxTokens:   extractMaxTokens,
		HistoryLimit:       historyLimit,
		StatelessTurnLimit: 8,
	}, nil
}

// RateLimitConfig 描述聊天接口的滑动窗口限流。
type RateLimitConfig struct {
	Window        time.Duration
	MaxRequests   int
	SweepInterval time.Duration
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	window, err := parseDurationMsEnv("CHAT_RATE_LIMIT_WINDOW_MS", 600000*time.Millisecond)
	if err != nil {
		return RateLimitConfig{}, err
	}

	maxRequests, err := parseIntEnv("CHAT_RATE_LIMIT_MAX_REQUESTS", 20)
	if err != nil {
		return RateLimitConfig{}, err
	}

	return RateLimitConfig{
		Window:        window,
		MaxRequests:   maxRequests,
		SweepInterval: time.Minute,
	}, nil
}

// StorageConfig 描述 SQLite 存储。
type StorageConfig struct {
	Enabled     bool
	DatabaseURL string
}

func loadStorageConfig() (StorageConfig, error) {
	enabled, err := parseBoolEnv("STORAGE_ENABLED", true)
	if err != nil {
		return StorageConfig{}, err
	}

	return StorageConfig{
		Enabled:     enabled,
		DatabaseURL: getEnvOrDefault("DATABASE_URL", "planner.db"),
	}, nil
}

// BriefConfig 控制后台提取流程。
type BriefConfig struct {
	MergeFields   bool
	MinUserTurns  int
	Workers       int
	QueueSize     int
	MessageWindow int
}

func loadBriefConfig() (BriefConfig, error) {
	merge, err := parseBoolEnv("BRIEF_MERGE_FIELDS", false)
	if err != nil {
		return BriefConfig{}, err
	}

	workers, err := parseIntEnv("BRIEF_WORKERS", 2)
	if err != nil {
		return BriefConfig{}, err
	}

	queueSize, err := parseIntEnv("BRIEF_QUEUE_SIZE", 64)
	if err != nil {
		return BriefConfig{}, err
	}

	return BriefConfig{
		MergeFields:   merge,
		MinUserTurns:  2,
		Workers:       workers,
		QueueSize:     queueSize,
		MessageWindow: 200,
	}, nil
}

// NotifyConfig 描述邮件通知配置。
type NotifyConfig struct {
	ResendAPIKey string
	From         string
	To           string
	Timeout      time.Duration
}

// Enabled 表示是否具备发送邮件所需的凭证。
func (c NotifyConfig) Enabled() bool {
	return c.ResendAPIKey != "" && c.To != ""
}

func loadNotifyConfig() (NotifyConfig, error) {
	timeout, err := parseDurationMsEnv("NOTIFY_TIMEOUT_MS", 10*time.Second)
	if err != nil {
		return NotifyConfig{}, err
	}

	return NotifyConfig{
		ResendAPIKey: strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		From:         getEnvOrDefault("NOTIFY_FROM", "Project Planner <planner@resend.dev>"),
		To:           strings.TrimSpace(os.Getenv("NOTIFY_TO")),
		Timeout:      timeout,
	}, nil
}

// SiteConfig 描述站点本身的信息。
type SiteConfig struct {
	OwnerName     string
	PublicBaseURL string
}

func loadSiteConfig() SiteConfig {
	return SiteConfig{
		OwnerName:     getEnvOrDefault("SITE_OWNER_NAME", "Kevin"),
		PublicBaseURL: strings.TrimSuffix(getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
	}
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseListEnv 解析逗号分隔的列表，忽略空项。
func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseDurationMsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
	}
	return time.Duration(*val) * time.Millisecond, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
