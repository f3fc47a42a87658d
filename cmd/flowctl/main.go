package main

import (
	"os"
	"time"

	"github.com/ranierimazili/o2b2-fido-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	baseURL  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "Drive open banking FIDO flows against a running orchestrator",
	Long: `flowctl calls the orchestrator's step endpoints the way the browser front end
does. A virtual WebAuthn authenticator answers the ceremonies, so a whole device
binding and payment authorisation can run headless.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
		return nil
	},
}

func init() {
	c := config.New()
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost"+c.GetPort(), "orchestrator base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", c.GetLogLevel(), "log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd, callbackCmd, newIDCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
