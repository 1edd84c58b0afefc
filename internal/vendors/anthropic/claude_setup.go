package anthropic

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/scorzo/cloudcost/internal/utils"
)

const ConfigFile = "anthropic.json"

// Load reads the model config in configDir, writing the defaults on first
// use, and sets the client up.
func Load(configDir string) (*Claude, error) {
	claude, err := utils.LoadConfigFromFile(configDir, ConfigFile, &ClaudeDefault)
	if err != nil {
		return nil, fmt.Errorf("failed to load model config: %w", err)
	}
	if err := claude.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup model client: %w", err)
	}
	return &claude, nil
}

// Setup reads the api key from the environment and prepares the http client.
func (c *Claude) Setup() error {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("environment variable 'ANTHROPIC_API_KEY' not set")
	}
	if model := os.Getenv("ANTHROPIC_MODEL"); model != "" {
		c.Model = model
	}
	if c.Url == "" {
		c.Url = ClaudeURL
	}
	if c.AnthropicVersion == "" {
		c.AnthropicVersion = ClaudeDefault.AnthropicVersion
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = ClaudeDefault.MaxTokens
	}
	c.client = &http.Client{Timeout: 5 * time.Minute}
	c.apiKey = apiKey
	if misc.Truthy(os.Getenv("DEBUG")) || misc.Truthy(os.Getenv("ANTHROPIC_DEBUG")) {
		c.debug = true
	}
	return nil
}
