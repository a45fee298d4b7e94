// Package cmd provides the CLI commands for easyquote.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"easyquote/internal/config"
	"easyquote/internal/logging"
	"easyquote/internal/metrics"
)

// Version is the CLI version
const Version = "0.1.0"

var (
	cfgFile string
	verbose bool
	token   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "easyquote",
	Short: "Price configurable quote line items",
	Long: `easyquote prices configurable product line items against the EasyQuote
pricing API and keeps quote items in sync with their saved configuration.

Examples:
  easyquote products
  easyquote price 5f1c... --set 11111111-2222-3333-4444-555555555555=250
  easyquote price 5f1c... --qty-prompt 11111111-... --qty 100,500,1000
  easyquote load item.json`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	defer logging.Sync()
	return rootCmd.Execute()
}

// ExecuteServer runs the serve command, taking the process arguments as its flags
func ExecuteServer() error {
	rootCmd.SetArgs(append([]string{serveCmd.Name()}, os.Args[1:]...))
	return Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, JSON or .hcl (default is $HOME/.easyquote.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "pricing API bearer token (overrides EASYQUOTE_TOKEN)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".easyquote.json"
	}
	return home + string(os.PathSeparator) + ".easyquote.json"
}

func initConfig() {
	config.LoadEnvFiles()

	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	config.ApplyEnv(cfg)
	if token != "" {
		cfg.Pricing.Token = token
	}
	config.Set(cfg)

	// Initialize logging
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}

	logging.Debug("Configuration loaded",
		zap.String("path", path),
		zap.String("base_url", cfg.Pricing.BaseURL),
		zap.String("storage", cfg.Storage.Backend))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logging.Warn("Metrics registration failed", zap.Error(err))
	}
	if cfg.Metrics.Address != "" {
		metrics.Serve(cfg.Metrics.Address)
		logging.Info("Serving metrics", zap.String("address", cfg.Metrics.Address))
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("easyquote version %s\n", Version)
	},
}

// configCmd manages configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.Get()
		if cfg.Pricing.Token != "" {
			cfg.Pricing.Token = "********"
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultConfigPath()
		if len(args) > 0 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
		if err := config.Default().Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}
