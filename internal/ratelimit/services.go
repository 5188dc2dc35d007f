package ratelimit

// Names of the external services the engine throttles.
const (
	ServiceBitsCrunch = "bitscrunch"
	ServiceGemini     = "gemini"
	ServiceOpenAI     = "openai"
	ServiceAnthropic  = "anthropic"
	ServiceTelegram   = "telegram"
)

// DefaultServices returns the windows used in production. The data source
// ceilings come from configuration; the rest are conservative fixed budgets.
func DefaultServices(dataPerMinute, dataPerMonth int) Services {
	llm := []Window{PerMinute(60), PerHour(1000)}
	return Services{
		ServiceBitsCrunch: {PerMinute(dataPerMinute), PerMonth(dataPerMonth)},
		ServiceGemini:     llm,
		ServiceOpenAI:     llm,
		ServiceAnthropic:  llm,
		ServiceTelegram:   {PerSecond(30)},
	}
}
