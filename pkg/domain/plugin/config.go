package plugin

import "fmt"

// PluginConfig configures the external source plugin.
type PluginConfig struct {
	// Binary is the path to the plugin binary
	Binary string `yaml:"binary" json:"binary"`
	// Config holds the plugin-specific configuration key-value pairs
	Config map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
}

// Enabled reports whether a plugin binary is configured.
func (c *PluginConfig) Enabled() bool {
	return c != nil && c.Binary != ""
}

// Get returns a config value or def when unset.
func (c *PluginConfig) Get(key, def string) string {
	if c == nil || c.Config == nil {
		return def
	}
	if v, ok := c.Config[key]; ok && v != "" {
		return v
	}
	return def
}

// Validate checks that an enabled plugin carries what the loader needs.
func (c *PluginConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.Binary == "" && len(c.Config) > 0 {
		return fmt.Errorf("source plugin config given without a binary")
	}
	return nil
}
