// Package config loads engine configuration from the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/sensora/chatsync/log"
)

type Config struct {
	Env              string        `envconfig:"env"`
	ProjectID        string        `envconfig:"project_id"`
	DirectoryBaseURL string        `envconfig:"directory_base_url"`
	DirectoryAPIKey  string        `envconfig:"directory_api_key"`
	PageSize         int           `envconfig:"page_size" default:"20"`
	TypingTimeout    time.Duration `envconfig:"typing_timeout" default:"3s"`
}

// Load reads .env outside release mode, processes CHATSYNC_* variables
// and falls back to the metadata server for the project id when unset.
func Load(ctx context.Context) (*Config, error) {
	if os.Getenv("CHATSYNC_ENV") != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.FromContext(ctx).Info("no .env file loaded", "errorMsg", err.Error())
		}
	}

	c := &Config{}
	if err := envconfig.Process("chatsync", c); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if c.ProjectID == "" {
		projectID, err := metadata.ProjectIDWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving project id: %w", err)
		}
		c.ProjectID = projectID
	}
	return c, nil
}
