package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type ServerConfig struct {
	MirrorConfig
	Stage               string `envconfig:"STAGE" default:"dev"`
	ProjectID           string `envconfig:"GOOGLE_CLOUD_PROJECT_ID" default:"go-semantic-release"`
	Port                string `envconfig:"PORT" default:"8080"`
	BindAddress         string `envconfig:"BIND_ADDRESS"`
	AdminAccessToken    string `envconfig:"ADMIN_ACCESS_TOKEN"`
	DisableRequestCache bool   `envconfig:"DISABLE_REQUEST_CACHE"`
	Version             string
	DisableMetrics      bool `envconfig:"DISABLE_METRICS"`
}

func NewServerConfigFromEnv() (*ServerConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	var sCfg ServerConfig
	err := envconfig.Process("", &sCfg)
	if err != nil {
		return nil, err
	}
	return &sCfg, nil
}

func (s *ServerConfig) GetServerAddr() string {
	return s.BindAddress + ":" + s.Port
}
