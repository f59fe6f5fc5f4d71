package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is loaded from the environment. Credential material is
// consumed as already-valid file paths and tokens; acquisition and
// refresh are not this service's concern.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	DBDriver string `envconfig:"DB_DRIVER" default:"mysql"`
	DBDSN    string `envconfig:"DB_DSN" required:"true"`

	LineChannelToken  string `envconfig:"LINE_CHANNEL_TOKEN" required:"true"`
	LineChannelSecret string `envconfig:"LINE_CHANNEL_SECRET" required:"true"`
	OwnerUserID       string `envconfig:"OWNER_USER_ID" required:"true"`

	GmailCredentialsPath string `envconfig:"GMAIL_CREDENTIALS_PATH" default:"credentials.json"`
	GmailTokenPath       string `envconfig:"GMAIL_TOKEN_PATH" default:"token.json"`
	GmailLabel           string `envconfig:"GMAIL_LABEL" default:"CATEGORY_PERSONAL"`

	FetchCron     string `envconfig:"FETCH_CRON" default:"30 4 * * *"`
	FetchPageSize int64  `envconfig:"FETCH_PAGE_SIZE" default:"100"`
	DeliveryLimit int    `envconfig:"DELIVERY_LIMIT" default:"100"`
	FanoutWidth   int    `envconfig:"FANOUT_WIDTH" default:"8"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
