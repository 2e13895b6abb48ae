package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/funnel/internal/cmd/client"
	serverrun "github.com/rzbill/funnel/internal/cmd/server"
	logpkg "github.com/rzbill/funnel/pkg/log"
)

var version = "dev"

func main() {
	// Local .env overlays are convenient in development; missing files are
	// fine.
	_ = godotenv.Load()

	level := os.Getenv("FUNNEL_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "funnel",
		Short: "Funnel event relay CLI",
		Long:  "Funnel accepts events over HTTP, batches them, and relays them to a downstream sink. This CLI manages the server and basic client operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the funnel server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			httpAddr, _ := cmd.Flags().GetString("http")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			if logLevel != "" {
				_ = os.Setenv("FUNNEL_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("FUNNEL_LOG_FORMAT", logFormat)
			}

			if err := serverrun.Run(context.Background(), serverrun.Options{
				ConfigPath: configPath,
				HTTPAddr:   httpAddr,
				DataDir:    dataDir,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("config", "", "Path to a JSON config file")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (overrides config)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (overrides config; defaults to OS-specific location)")
	serverStartCmd.Flags().String("log-level", os.Getenv("FUNNEL_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("FUNNEL_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// client commands
	rootCmd.AddCommand(clientcmd.NewSendCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewHealthCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewLostCommand())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the funnel version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("funnel", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("FUNNEL_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
