package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// envKeys maps provider names to their API key environment variables.
var envKeys = map[string]string{
	"cerebras":  "CEREBRAS_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// LoadKey resolves the API key for a provider. It checks
// ~/.config/<provider>/config first (first non-empty line), then the
// provider's environment variable.
func LoadKey(provider string) (string, error) {
	envVar, ok := envKeys[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", provider, "config")
		if data, err := os.ReadFile(path); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				line = strings.TrimSpace(line)
				if line != "" {
					return line, nil
				}
			}
		}
	}

	if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no API key for %s: checked ~/.config/%s/config and $%s", provider, provider, envVar)
}
