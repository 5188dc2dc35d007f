package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by CHAINWATCH_ENV (or .env by default),
// then the matching .secret file if it exists. Variables already set in the
// environment win. All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CHAINWATCH_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intVar("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// LogLevel returns the log level (debug, info, warn, error).
func LogLevel() string {
	return stringVar("LOG_LEVEL", "info")
}

// APIKey protects the /v1 routes. Empty disables authentication.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// Scheduler

func CheckInterval() time.Duration {
	return secondsVar("AGENT_CHECK_INTERVAL", 300*time.Second)
}

func SchedulerErrorBackoff() time.Duration {
	return secondsVar("SCHEDULER_ERROR_BACKOFF", 30*time.Second)
}

func MaxConcurrentAgents() int {
	return intVar("MAX_CONCURRENT_AGENTS", 4)
}

func AgentRunTimeout() time.Duration {
	return secondsVar("AGENT_RUN_TIMEOUT", 120*time.Second)
}

// SchedulerAutostart controls whether the scheduler loop starts with the server.
func SchedulerAutostart() bool {
	return boolVar("SCHEDULER_AUTOSTART", true)
}

func SeverityHighRatio() float64 {
	return floatVar("SEVERITY_HIGH_RATIO", 2.0)
}

func SeverityCriticalRatio() float64 {
	return floatVar("SEVERITY_CRITICAL_RATIO", 5.0)
}

// Rate limiting of outbound calls

func EnableRateLimiting() bool {
	return boolVar("ENABLE_RATE_LIMITING", true)
}

func BitsCrunchAPIKey() string {
	return os.Getenv("BITSCRUNCH_API_KEY")
}

func BitsCrunchBaseURL() string {
	return stringVar("BITSCRUNCH_BASE_URL", "https://api.unleashnfts.com/api/v1")
}

func BitsCrunchRateLimitPerMinute() int {
	return intVar("BITSCRUNCH_RATE_LIMIT_PER_MINUTE", 20)
}

func BitsCrunchRateLimitPerMonth() int {
	return intVar("BITSCRUNCH_RATE_LIMIT_PER_MONTH", 25000)
}

// Plan compiler

// LLMProvider returns the plan compiler backend.
// Valid values: gemini, openai, anthropic, mock
func LLMProvider() string {
	return strings.ToLower(stringVar("LLM_PROVIDER", "gemini"))
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "openai":
		return OpenAIAPIKey()
	case "mock":
		return ""
	default:
		return GeminiAPIKey()
	}
}

// Notifications

func TelegramBotToken() string {
	return os.Getenv("TELEGRAM_BOT_TOKEN")
}

// TelegramChatID receives alerts for agents without a recipient.
func TelegramChatID() string {
	return os.Getenv("TELEGRAM_CHAT_ID")
}

// Agent defaults

func DefaultMaxRetries() int {
	return intVar("DEFAULT_MAX_RETRIES", 3)
}

// DefaultScheduleInterval is clamped to the allowed 60s..3600s range.
func DefaultScheduleInterval() time.Duration {
	d := secondsVar("DEFAULT_SCHEDULE_INTERVAL", 300*time.Second)
	if d < 60*time.Second {
		return 60 * time.Second
	}
	if d > 3600*time.Second {
		return 3600 * time.Second
	}
	return d
}

// HTTP API rate limiting

// RateLimitRPS returns requests per second limit per client IP.
func RateLimitRPS() float64 {
	return floatVar("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
func RateLimitBurst() int {
	return intVar("RATE_LIMIT_BURST", 20)
}

func stringVar(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// intVar falls back to def for missing, malformed or non-positive values.
func intVar(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func floatVar(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func boolVar(key string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return b
}

func secondsVar(key string, def time.Duration) time.Duration {
	n := intVar(key, -1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
