package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Database.DSN)
	redact(&out.Database.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Dome.APIKey)
	redact(&out.Embedding.AccessToken)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	out.Pipeline.Wallets = cloneStrings(cfg.Pipeline.Wallets)
	out.Pipeline.SeedMarkets = cloneStrings(cfg.Pipeline.SeedMarkets)
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	if cfg.Server.APIKeys != nil {
		out.Server.APIKeys = make([]string, len(cfg.Server.APIKeys))
		for i := range out.Server.APIKeys {
			out.Server.APIKeys[i] = redacted
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
