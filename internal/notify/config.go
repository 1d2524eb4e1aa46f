package notify

import (
	"fmt"
	"os"
)

// Config holds the notify service's static delivery settings, sourced from
// process environment variables rather than a database-backed settings
// table — this hub has no settings API, so a per-send settings reload
// collapses to a value loaded once at startup.
type Config struct {
	SlackWebhookURL string

	SendGridAPIKey string
	SendGridTo     string
}

// Load reads notify configuration from the environment. It returns an
// error if exactly one of SENDGRID_API_KEY/SENDGRID_TO is set — the
// pairing is all-or-nothing ("you set a sendgrid api key, but not a
// destination" / vice versa).
func Load() (Config, error) {
	cfg := Config{
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		SendGridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		SendGridTo:      os.Getenv("SENDGRID_TO"),
	}
	if (cfg.SendGridAPIKey == "") != (cfg.SendGridTo == "") {
		return Config{}, fmt.Errorf("notify: SENDGRID_API_KEY and SENDGRID_TO must both be set or both be empty")
	}
	return cfg, nil
}
