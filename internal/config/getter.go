package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const prefix = "DEPLOYAGENT"

const defaultSpiffePattern = `spiffe://[^\s,"']+`

var conf Config

// Parse reads the configuration file given as parameter.
// Every key can be overridden by an environment variable, e.g.
// DEPLOYAGENT_INVENTORY_USEFACTER=false.
func Parse(confFile string) (*Config, error) {
	setDefault()

	viper.SetEnvPrefix(prefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if len(confFile) > 0 {
		viper.SetConfigFile(confFile)

		err := viper.ReadInConfig()
		if err != nil {
			return &conf, fmt.Errorf("failed to read config file %v: %w", confFile, err)
		}
	}

	err := viper.Unmarshal(&conf)
	if err != nil {
		return &conf, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	err = validate(conf)
	if err != nil {
		return &conf, fmt.Errorf("invalid config: %w", err)
	}

	return &conf, nil
}

func validate(c Config) error {
	switch c.Inventory.RetryFailure {
	case RetryFailureAbort, RetryFailureKeep:
	default:
		return fmt.Errorf("unexpected inventory.retryFailure value %q", c.Inventory.RetryFailure)
	}

	if c.Inventory.UseFacter && c.Inventory.FacterBin == "" {
		return fmt.Errorf("inventory.facterBin is required when facter is used")
	}

	return nil
}

func setDefault() {
	viper.SetDefault("logs.level", 0)
	viper.SetDefault("logs.encoder", EncoderTypeConsole)
	viper.SetDefault("metrics.port", 7777)

	viper.SetDefault("inventory.useFacter", true)
	viper.SetDefault("inventory.facterBin", "facter")
	viper.SetDefault("inventory.retryFailure", RetryFailureAbort)

	viper.SetDefault("environment.fleet", false)
	viper.SetDefault("environment.name", "default")

	viper.SetDefault("security.normandie.enabled", true)
	viper.SetDefault("security.normandie.command", []string{"sudo", "normandie", "-app", "host"})
	viper.SetDefault("security.normandie.pattern", defaultSpiffePattern)
	viper.SetDefault("security.knox.enabled", true)
	viper.SetDefault("security.knox.command", []string{"sudo", "knox", "status"})
	viper.SetDefault("security.knox.pattern", defaultSpiffePattern)

	viper.SetDefault("publish.maxAttempt", 3)
	viper.SetDefault("publish.delay", "500ms")

	viper.SetDefault("valkey.expiration", "1h")
	viper.SetDefault("kafka.broker.version", "3.6.0")
	viper.SetDefault("kafka.broker.creds.mechanism", "SCRAM-SHA-512")
	viper.SetDefault("kafka.refresh.group", "deploy-agent-refresh")
}
