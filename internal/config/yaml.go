package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file `clawjobs config init` writes and the
// CLI looks for in the working directory.
const DefaultFileName = "clawjobs.yaml"

const redacted = "********"

// WriteDefault writes the default configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	header := []byte("# clawjobs configuration. Every key can be overridden with\n" +
		"# CLAWJOBS_<SECTION>_<KEY>, e.g. CLAWJOBS_DATABASE_DSN.\n")
	return os.WriteFile(path, append(header, data...), 0600)
}

// Redacted returns a copy of c with secrets and credential-bearing URLs
// masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.CORS.Origins = append([]string(nil), c.Server.CORS.Origins...)
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.Auth.SessionSecret)
	mask(&out.Payments.WebhookSecret)
	mask(&out.Redis.URL)
	mask(&out.Events.AMQPURL)
	mask(&out.Sentry.DSN)
	if out.Database.Driver != "sqlite" {
		mask(&out.Database.DSN)
	}
	return &out
}

// YAML renders c as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
