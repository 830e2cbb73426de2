package generation

import "strings"

// Provider identifies which upstream a credential is for.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

var keyPrefixes = map[Provider]string{
	ProviderGemini: "AIza",
	ProviderOpenAI: "sk-",
}

// Credentials is the API credential used for one request.
type Credentials struct {
	Provider Provider
	APIKey   string
	// OAuth marks bearer tokens obtained via the authorization-code flow. They are opaque
	// and skip the key-prefix check.
	OAuth bool
}

// ResolveCredentials picks the server key when configured, else the client key.
func ResolveCredentials(provider Provider, serverKey, clientKey string) Credentials {
	key := strings.TrimSpace(serverKey)
	if key == "" {
		key = strings.TrimSpace(clientKey)
	}
	return Credentials{Provider: provider, APIKey: key}
}

// Validate checks the credential shape without contacting the upstream.
func (c Credentials) Validate() error {
	if c.APIKey == "" {
		return &Error{Code: CodeNoAPIKey, Message: "Please set your API key in Settings or add " + envVarFor(c.Provider) + " env variable"}
	}
	if c.OAuth {
		return nil
	}
	prefix, ok := keyPrefixes[c.Provider]
	if ok && !strings.HasPrefix(c.APIKey, prefix) {
		return &Error{Code: CodeInvalidAPIKey, Message: "Invalid API key format. " + providerName(c.Provider) + " keys start with " + prefix + "..."}
	}
	return nil
}

func envVarFor(p Provider) string {
	if p == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY"
}

func providerName(p Provider) string {
	if p == ProviderOpenAI {
		return "OpenAI"
	}
	return "Gemini"
}
