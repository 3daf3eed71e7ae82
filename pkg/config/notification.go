package config

type NotificationsConfig struct {
	Detailed     bool                `koanf:"detailed"`
	SkipEmptyRun bool                `koanf:"skip_empty_run"`
	Service      NotificationService `koanf:"service"`
}

type NotificationService struct {
	Discord DiscordConfig `koanf:"discord"`
}

type DiscordConfig struct {
	WebhookURL string `koanf:"webhook_url"`
	Username   string `koanf:"username"`
	AvatarURL  string `koanf:"avatar_url"`
}

func (d DiscordConfig) Enabled() bool {
	return d.WebhookURL != ""
}
