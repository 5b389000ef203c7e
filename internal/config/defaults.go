package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			DataDir:  "~/.wagate",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			MaxBodyBytes: 20 << 20,
		},
		WhatsApp: WhatsAppConfig{
			APIBase:     "https://graph.facebook.com/v21.0",
			WebhookPath: "/webhook/whatsapp",
			DBPath:      "~/.wagate/wagate.db",
			MaxRetries:  3,
			SendBurst:   10,
		},
		Phone: PhoneConfig{
			CountryCode: "62",
		},
		Commands: CommandsConfig{
			Enabled:     true,
			RejectCalls: true,
		},
		Media: MediaConfig{
			MaxBytes:        16 << 20,
			FetchTimeout:    60,
			DefaultFilename: "Media",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
