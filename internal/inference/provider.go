package inference

import (
	"fmt"
	"strings"
	"time"

	"github.com/careerlens/careerlens/internal/inference/driver"
	"github.com/careerlens/careerlens/internal/inference/driver/gemini"
	"github.com/careerlens/careerlens/internal/inference/driver/openai"
)

// Supported provider identifiers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ProviderConfig selects and authenticates the text-generation backend.
type ProviderConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// NewDriver builds the driver named by cfg.Provider.
func NewDriver(cfg ProviderConfig) (driver.Driver, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: api key not configured", provider)
	}

	switch provider {
	case ProviderOpenAI, "":
		client := openai.NewClient(cfg.BaseURL, cfg.APIKey)
		client.Timeout = cfg.Timeout
		return client, nil
	case ProviderGemini:
		return gemini.NewClient(cfg.BaseURL, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}
