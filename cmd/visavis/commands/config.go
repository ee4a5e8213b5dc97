package commands

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/match"
	"github.com/visavis/visavis/pkg/signaling"
)

// defaultSTUNServer keeps sessions traversing typical home NATs
// without any configuration.
const defaultSTUNServer = "stun:stun.l.google.com:19302"

// CLIConfig collects the run command's settings. Flags, a config file
// and defaults are merged through viper.
type CLIConfig struct {
	RelayURL    string        `mapstructure:"relay"`
	BrokerURL   string        `mapstructure:"broker"`
	Region      string        `mapstructure:"region"`
	STUN        []string      `mapstructure:"stun"`
	ServiceAddr string        `mapstructure:"service-listen"`
	NoVideo     bool          `mapstructure:"no-video"`
	NoAudio     bool          `mapstructure:"no-audio"`
	LogLevel    string        `mapstructure:"log"`
	Watchdog    time.Duration `mapstructure:"watchdog"`
}

func defaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		RelayURL:    signaling.DefaultRelayURL,
		BrokerURL:   endpoint.DefaultBrokerURL,
		STUN:        []string{defaultSTUNServer},
		ServiceAddr: "127.0.0.1:8090",
		LogLevel:    "info",
		Watchdog:    match.DefaultWatchdogTimeout,
	}
}

// bindFlagsLoadViper registers the command's flags with viper, reads
// an optional config file and unmarshals the merged result.
func bindFlagsLoadViper(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Look for visavis.{toml,yaml,json} next to the binary or under
	// the user's config directory.
	viper.SetConfigName("visavis")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/visavis")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return viper.Unmarshal(_config)
}
