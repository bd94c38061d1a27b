package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ModelCapabilities holds the token limits the Conversation Manager and
// Token Estimator need to size a request (§3 Data Model).
type ModelCapabilities struct {
	MaxPromptTokens       int
	MaxOutputTokens       int
	MaxContextWindowTokens int
}

// DefaultModelCapabilities are used when the models endpoint cannot be
// reached or does not describe a model (§4.2).
func DefaultModelCapabilities() ModelCapabilities {
	return ModelCapabilities{
		MaxPromptTokens:        128000,
		MaxOutputTokens:        4096,
		MaxContextWindowTokens: 128000,
	}
}

// CapabilityCache fetches and caches per-model token limits for the
// life of the gateway instance.
type CapabilityCache struct {
	mu     sync.RWMutex
	byID   map[string]ModelCapabilities
	client *http.Client
	logger *zap.Logger
}

// NewCapabilityCache creates an empty cache.
func NewCapabilityCache(logger *zap.Logger) *CapabilityCache {
	return &CapabilityCache{
		byID:   make(map[string]ModelCapabilities),
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type modelsListEnvelope struct {
	Data []modelEntry `json:"data"`
}

type modelEntry struct {
	ID                 string `json:"id"`
	MaxRequestTokens   *int   `json:"max_request_tokens"`
	MaxCompletionTokens *int  `json:"max_completion_tokens"`
	ContextWindow      *int   `json:"context_window"`
	Capabilities       *struct {
		Limits *struct {
			MaxPromptTokens        *int `json:"max_prompt_tokens"`
			MaxOutputTokens        *int `json:"max_output_tokens"`
			MaxContextWindowTokens *int `json:"max_context_window_tokens"`
		} `json:"limits"`
	} `json:"capabilities"`
}

// Get returns the cached capabilities for modelID, fetching from
// modelsURL on first use. Failures fall through to defaults and are
// logged but never returned as an error (§4.2).
func (c *CapabilityCache) Get(ctx context.Context, modelsURL, apiKey, modelID string) ModelCapabilities {
	c.mu.RLock()
	if cap, ok := c.byID[modelID]; ok {
		c.mu.RUnlock()
		return cap
	}
	c.mu.RUnlock()

	fetched, err := c.fetch(ctx, modelsURL, apiKey)
	if err != nil {
		c.logger.Warn("model capability fetch failed, using defaults",
			zap.String("model", modelID), zap.Error(err))
		def := DefaultModelCapabilities()
		c.store(modelID, def)
		return def
	}

	c.mu.Lock()
	for id, cap := range fetched {
		c.byID[id] = cap
	}
	c.mu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if cap, ok := c.byID[modelID]; ok {
		return cap
	}
	return DefaultModelCapabilities()
}

func (c *CapabilityCache) store(modelID string, cap ModelCapabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[modelID] = cap
}

func (c *CapabilityCache) fetch(ctx context.Context, modelsURL, apiKey string) (map[string]ModelCapabilities, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("models endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope modelsListEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}

	def := DefaultModelCapabilities()
	result := make(map[string]ModelCapabilities, len(envelope.Data))
	for _, e := range envelope.Data {
		cap := def
		if e.MaxRequestTokens != nil {
			cap.MaxPromptTokens = *e.MaxRequestTokens
		} else if e.Capabilities != nil && e.Capabilities.Limits != nil && e.Capabilities.Limits.MaxPromptTokens != nil {
			cap.MaxPromptTokens = *e.Capabilities.Limits.MaxPromptTokens
		}
		if e.MaxCompletionTokens != nil {
			cap.MaxOutputTokens = *e.MaxCompletionTokens
		} else if e.Capabilities != nil && e.Capabilities.Limits != nil && e.Capabilities.Limits.MaxOutputTokens != nil {
			cap.MaxOutputTokens = *e.Capabilities.Limits.MaxOutputTokens
		}
		if e.ContextWindow != nil {
			cap.MaxContextWindowTokens = *e.ContextWindow
		} else if e.Capabilities != nil && e.Capabilities.Limits != nil && e.Capabilities.Limits.MaxContextWindowTokens != nil {
			cap.MaxContextWindowTokens = *e.Capabilities.Limits.MaxContextWindowTokens
		}
		result[e.ID] = cap
	}
	return result, nil
}
