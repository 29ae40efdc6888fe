package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aviator/internal/app"
	"aviator/internal/config"
)

func main() {
	var (
		mode        string
		sources     string
		httpAddr    string
		logDir      string
		scenario    string
		verbose     bool
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:   "aviator",
		Short: "ADS-B flight tracker",
		Long: `Aviator decodes Mode S Extended Squitter frames into live flight state.

It resolves aircraft positions from CPR pairs, tracks callsigns, altitude
and velocity per aircraft, and serves the flight table over a JSON API.
Frames arrive from TCP raw-frame feeds (AVR format) or a NATS bus; a
simulation mode generates synthetic traffic for development.

Configuration comes from environment variables (optionally a .env file);
flags override the environment.

Example usage:
  aviator --mode raw --sources 127.0.0.1:30002 --http :8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				app.ShowVersion()
				return nil
			}

			// Flags win over the environment so one-off overrides do not
			// require editing .env.
			if cmd.Flags().Changed("mode") {
				os.Setenv("AVIATOR_MODE", mode)
			}
			if cmd.Flags().Changed("sources") {
				os.Setenv("SOURCES", sources)
			}
			if cmd.Flags().Changed("http") {
				os.Setenv("HTTP_ADDR", httpAddr)
			}
			if cmd.Flags().Changed("log-dir") {
				os.Setenv("LOG_DIR", logDir)
			}
			if cmd.Flags().Changed("scenario") {
				os.Setenv("SCENARIO", scenario)
			}
			if cmd.Flags().Changed("verbose") {
				os.Setenv("VERBOSE", fmt.Sprintf("%t", verbose))
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return app.NewApplication(cfg).Start()
		},
	}

	rootCmd.Flags().StringVarP(&mode, "mode", "m", config.ModeSim, "Run mode: sim or raw")
	rootCmd.Flags().StringVarP(&sources, "sources", "s", "", "Comma-separated TCP raw-frame feeds (host:port)")
	rootCmd.Flags().StringVar(&httpAddr, "http", ":8080", "HTTP API listen address")
	rootCmd.Flags().StringVarP(&logDir, "log-dir", "l", "", "BaseStation export directory")
	rootCmd.Flags().StringVar(&scenario, "scenario", "", "Simulation scenario file (YAML)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
