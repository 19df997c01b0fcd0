package registry

import "github.com/shopspring/decimal"

func rate(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func defaultModels() []ModelDescriptor {
	return []ModelDescriptor{
		// OpenAI
		{
			ID:            "gpt-5-pro",
			Provider:      ProviderOpenAI,
			DisplayName:   "GPT-5 Pro",
			Description:   "Highest-effort GPT-5 reasoning for hard problems",
			UpstreamModel: "gpt-5-pro",
			Modes:         []Mode{ModeHigh},
			InputRate:     rate("4.50"),
			OutputRate:    rate("36.00"),
		},
		{
			ID:            "gpt-5",
			Provider:      ProviderOpenAI,
			DisplayName:   "GPT-5",
			Description:   "General purpose GPT-5",
			UpstreamModel: "gpt-5",
			Modes:         AllModes,
			InputRate:     rate("0.38"),
			OutputRate:    rate("3.00"),
		},
		{
			ID:            "gpt-5-mini",
			Provider:      ProviderOpenAI,
			DisplayName:   "GPT-5 Mini",
			Description:   "Fast, economical GPT-5",
			UpstreamModel: "gpt-5-mini",
			Modes:         AllModes,
			InputRate:     rate("0.08"),
			OutputRate:    rate("0.31"),
		},

		// Anthropic
		{
			ID:            "claude-opus-4-1",
			Provider:      ProviderAnthropic,
			DisplayName:   "Claude Opus 4.1",
			Description:   "Anthropic's most capable model",
			UpstreamModel: "claude-opus-4-1",
			Modes:         AllModes,
			InputRate:     rate("4.50"),
			OutputRate:    rate("22.50"),
		},
		{
			ID:            "claude-sonnet-4-5",
			Provider:      ProviderAnthropic,
			DisplayName:   "Claude Sonnet 4.5",
			Description:   "Balanced Claude for coding and agents",
			UpstreamModel: "claude-sonnet-4-5",
			Modes:         AllModes,
			InputRate:     rate("0.90"),
			OutputRate:    rate("4.50"),
		},
		{
			ID:            "claude-haiku-4-5",
			Provider:      ProviderAnthropic,
			DisplayName:   "Claude Haiku 4.5",
			Description:   "Low latency Claude",
			UpstreamModel: "claude-haiku-4-5",
			Modes:         []Mode{ModeLow, ModeMedium},
			InputRate:     rate("0.30"),
			OutputRate:    rate("1.50"),
		},

		// Google
		{
			ID:            "gemini-2-5-pro",
			Provider:      ProviderGoogle,
			DisplayName:   "Gemini 2.5 Pro",
			Description:   "Gemini with dynamic thinking",
			UpstreamModel: "gemini-2.5-pro",
			Modes:         AllModes,
			InputRate:     rate("0.38"),
			OutputRate:    rate("3.00"),
		},
		{
			ID:            "gemini-2-5-flash",
			Provider:      ProviderGoogle,
			DisplayName:   "Gemini 2.5 Flash",
			Description:   "Economical Gemini",
			UpstreamModel: "gemini-2.5-flash",
			Modes:         AllModes,
			InputRate:     rate("0.09"),
			OutputRate:    rate("0.75"),
		},
	}
}

func defaultFlatRates() []FlatRate {
	return []FlatRate{
		{Unit: UnitImage, Tier: "standard", Credits: 10},
		{Unit: UnitImage, Tier: "hd", Credits: 20},
		{Unit: UnitSearch, Tier: "standard", Credits: 2},
	}
}
