// Command gpcard is a GlobalPlatform card-manager CLI: secure-channel
// session setup followed by application lifecycle operations (list,
// delete, load, install) against a PC/SC-connected smartcard.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/denisoancea/GlobalPlatformPro/internal/config"
	"github.com/denisoancea/GlobalPlatformPro/internal/pcsc"
)

var version = "0.1.0"

var (
	flagReader   string
	flagVariant  string
	flagJSON     bool
	flagConfig   string
	flagVerbose  bool
	flagStrict   bool
)

var rootCmd = &cobra.Command{
	Use:     "gpcard",
	Short:   "GlobalPlatform card manager",
	Version: version,
	Long: `gpcard v` + version + `
A GlobalPlatform secure-channel card manager.

Supports:
  - Secure Channel Protocol session setup (SCP01, SCP02)
  - Listing on-card applications, packages, and Security Domains
  - Deleting applications and packages
  - Loading and installing CAP files
  - Dry-run probing of key material without full authentication`,
}

func init() {
	cobra.OnInitialize(setupLogging)

	rootCmd.PersistentFlags().StringVarP(&flagReader, "reader", "r", "",
		"PC/SC reader name (default: the only attached reader; required when several are attached)")
	rootCmd.PersistentFlags().StringVar(&flagVariant, "variant", "any",
		"SCP variant: any, scp01-05, scp01-15, scp02-04 .. scp02-1b")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "suppress the session and registry tables (no JSON is written)")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "",
		"path to config.yaml with key set material (defaults to the GP test keys)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagStrict, "strict", false,
		"fail instead of warn on recoverable Security Domain selection errors")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func connectReader() (*pcsc.Reader, error) {
	if flagReader == "" {
		readers, err := pcsc.ListReaders()
		if err != nil {
			return nil, fmt.Errorf("list readers: %w", err)
		}
		if len(readers) == 0 {
			return nil, fmt.Errorf("no PC/SC readers found")
		}
		if len(readers) > 1 {
			fmt.Fprintln(os.Stderr, "multiple readers found:")
			for _, r := range readers {
				fmt.Fprintf(os.Stderr, "  %s\n", r)
			}
			return nil, fmt.Errorf("multiple readers found, use --reader to select one")
		}
	}
	reader, err := pcsc.Connect(flagReader)
	if err != nil {
		return nil, err
	}
	if err := reader.Reconnect(false); err != nil {
		slog.Debug("warm reset failed, continuing", "error", err)
	}
	return reader, nil
}

func loadKeySetConfig() (*config.Config, error) {
	if flagConfig == "" {
		return &config.Config{}, nil
	}
	return config.Load(flagConfig)
}

func main() {
	Execute()
}
