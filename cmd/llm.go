package cmd

import (
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/tagger/internal/llm"
)

// newLLMClient builds the suggestion client from anthropic.api_key, falling back
// to ANTHROPIC_API_KEY. It returns nil when neither is set; suggest and
// --describe report that to the user and the API answers 503.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}
