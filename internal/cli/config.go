package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"visitplan/internal/config"
)

// redacted hides a secret while showing whether it is set.
func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// redactedURL masks the password of a connection URL and keeps the rest
// readable. Anything that does not parse is hidden whole.
func redactedURL(s string) string {
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return redacted(s)
	}
	return u.Redacted()
}

func newConfigCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.Distance.ORSAPIKey = redacted(cfg.Distance.ORSAPIKey)
			cfg.Cache.DatabaseURL = redacted(cfg.Cache.DatabaseURL)
			cfg.Cache.RedisURL = redactedURL(cfg.Cache.RedisURL)
			cfg.Broker.RedisURL = redactedURL(cfg.Broker.RedisURL)
			cfg.Webhooks.Secret = redacted(cfg.Webhooks.Secret)
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(cfg)
		},
	}
}
