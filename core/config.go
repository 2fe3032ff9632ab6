package core

import (
	"fmt"
	"strings"
)

type EndpointConfig struct {
	Path string `koanf:"path" mapstructure:"path"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Origin      string         `koanf:"origin" mapstructure:"origin"`
	ContextID   string         `koanf:"context_id" mapstructure:"context_id"`
	Endpoint    EndpointConfig `koanf:"endpoint" mapstructure:"endpoint"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "config-monitor",
		Origin:      DefaultOrigin,
		Endpoint:    EndpointConfig{Path: ""},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Origin) == "" {
		return fmt.Errorf("core: origin is required")
	}
	if path := strings.TrimSpace(c.Endpoint.Path); path != "" && !strings.HasPrefix(path, "/") {
		return fmt.Errorf("core: endpoint.path must start with '/'")
	}
	return nil
}

// MonitorRoute returns the path the monitor endpoint is served on.
func (c Config) MonitorRoute() string {
	prefix := strings.TrimRight(strings.TrimSpace(c.Endpoint.Path), "/")
	return prefix + "/monitor"
}
