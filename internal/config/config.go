package config

import "github.com/kelseyhightower/envconfig"

// Config holds application configuration loaded from environment variables.
//
// The holiday set is supplied out of band (comma-separated ISO dates) and
// refreshed by redeploy; exact dates only, no recurrence rules. An empty
// WEBHOOK_SECRET skips webhook signature checks.
type Config struct {
	BotToken       string   `envconfig:"BOT_TOKEN" required:"true"`
	AnnounceChatID int64    `envconfig:"ANNOUNCE_CHAT_ID" required:"true"`
	DBPath         string   `envconfig:"DB_PATH" default:"./data/parking.db"`
	HTTPAddr       string   `envconfig:"HTTP_ADDR" default:":8080"`
	Timezone       string   `envconfig:"TIMEZONE" default:"Asia/Kuala_Lumpur"`
	Holidays       []string `envconfig:"HOLIDAYS" default:"2026-01-01,2026-02-17,2026-02-18,2026-05-01,2026-06-01,2026-08-31,2026-09-16,2026-12-25"`
	WebhookSecret  string   `envconfig:"WEBHOOK_SECRET"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
