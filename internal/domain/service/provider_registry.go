package service

import "strings"

// ProviderKind enumerates the provider kinds the gateway understands.
type ProviderKind string

const (
	ProviderOpenAI  ProviderKind = "openai"
	ProviderCopilot ProviderKind = "copilot"
	ProviderClaude  ProviderKind = "claude"
	ProviderLocal   ProviderKind = "local"
)

// ProviderProfile is the frozen, process-wide description of a provider
// kind's wire contract (§3 Data Model / §4.1).
type ProviderProfile struct {
	Name                   string
	AuthHeader             string
	AuthTemplate           string // e.g. "Bearer %s"
	PathSuffix             string // e.g. "/chat/completions"
	TemperatureRange       [2]float64
	SupportsTools          bool
	RequiresCopilotHeaders bool
	RequiresSAMConfig      bool
	SupportsRoleTool       bool
}

// providerProfiles is the static, read-only table described in §4.1.
var providerProfiles = map[ProviderKind]ProviderProfile{
	ProviderOpenAI: {
		Name:             string(ProviderOpenAI),
		AuthHeader:       "Authorization",
		AuthTemplate:     "Bearer %s",
		PathSuffix:       "/chat/completions",
		TemperatureRange: [2]float64{0, 2},
		SupportsTools:    true,
		SupportsRoleTool: true,
	},
	ProviderCopilot: {
		Name:                   string(ProviderCopilot),
		AuthHeader:             "Authorization",
		AuthTemplate:           "Bearer %s",
		PathSuffix:             "/chat/completions",
		TemperatureRange:       [2]float64{0, 1},
		SupportsTools:          true,
		RequiresCopilotHeaders: true,
		RequiresSAMConfig:      true,
		SupportsRoleTool:       true,
	},
	ProviderClaude: {
		Name:             string(ProviderClaude),
		AuthHeader:       "x-api-key",
		AuthTemplate:     "%s",
		PathSuffix:       "/v1/messages",
		TemperatureRange: [2]float64{0, 1},
		SupportsTools:    true,
		SupportsRoleTool: false,
	},
	ProviderLocal: {
		Name:             string(ProviderLocal),
		AuthHeader:       "Authorization",
		AuthTemplate:     "Bearer %s",
		PathSuffix:       "/chat/completions",
		TemperatureRange: [2]float64{0, 2},
		SupportsTools:    true,
		SupportsRoleTool: true,
	},
}

// ProfileFor returns the frozen profile for a provider kind. Unknown
// kinds fall back to the OpenAI-compatible profile since any bare
// http(s):// endpoint is treated as generic OpenAI-compatible.
func ProfileFor(kind ProviderKind) ProviderProfile {
	if p, ok := providerProfiles[kind]; ok {
		return p
	}
	return providerProfiles[ProviderOpenAI]
}

// ResolveProvider maps a logical provider name or a base URL to a
// provider kind and the URL the Model Capability Cache should use to
// list models (§4.1). Matching order: logical name, then known URL
// substrings, then a generic http(s):// endpoint treated as
// OpenAI-compatible.
func ResolveProvider(nameOrURL string) (ProviderKind, string) {
	lower := strings.ToLower(strings.TrimSpace(nameOrURL))

	switch lower {
	case "openai":
		return ProviderOpenAI, "https://api.openai.com/v1/models"
	case "copilot", "github-copilot":
		return ProviderCopilot, "https://api.githubcopilot.com/models"
	case "claude", "anthropic":
		return ProviderClaude, "https://api.anthropic.com/v1/models"
	case "local":
		return ProviderLocal, "http://localhost:8080/v1/models"
	}

	switch {
	case strings.Contains(lower, "githubcopilot.com"):
		return ProviderCopilot, joinModelsURL(nameOrURL)
	case strings.Contains(lower, "anthropic.com"):
		return ProviderClaude, joinModelsURL(nameOrURL)
	case strings.Contains(lower, "openai.com"),
		strings.Contains(lower, "openrouter.ai"),
		strings.Contains(lower, "dashscope"):
		return ProviderOpenAI, joinModelsURL(nameOrURL)
	case strings.Contains(lower, "localhost:8080"):
		return ProviderLocal, joinModelsURL(nameOrURL)
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return ProviderOpenAI, joinModelsURL(nameOrURL)
	}

	// No recognizable URL shape — treat as a logical name for a local or
	// custom OpenAI-compatible deployment.
	return ProviderOpenAI, joinModelsURL(nameOrURL)
}

// joinModelsURL strips a trailing slash and a trailing /v1 segment,
// then appends /models.
func joinModelsURL(base string) string {
	u := strings.TrimRight(base, "/")
	u = strings.TrimSuffix(u, "/v1")
	return u + "/models"
}

// AdaptPayload clamps temperature into the provider's supported range,
// drops tools when unsupported, and injects sam_config when required
// (§4.1 Adaptation).
func AdaptPayload(payload map[string]interface{}, profile ProviderProfile) {
	if t, ok := payload["temperature"].(float64); ok {
		lo, hi := profile.TemperatureRange[0], profile.TemperatureRange[1]
		if t < lo {
			payload["temperature"] = lo
		} else if t > hi {
			payload["temperature"] = hi
		}
	}
	if !profile.SupportsTools {
		delete(payload, "tools")
	}
	if profile.RequiresSAMConfig {
		payload["sam_config"] = map[string]interface{}{"bypass_processing": true}
	}
}
