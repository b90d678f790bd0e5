package ai

// Settings is the auto-reply configuration fetched from the admin system.
// An empty ProviderKey disables auto-reply entirely.
type Settings struct {
	ProviderKey  string
	Model        string
	SystemPrompt string
}

// Enabled reports whether auto-reply is configured.
func (s Settings) Enabled() bool {
	return s.ProviderKey != ""
}
