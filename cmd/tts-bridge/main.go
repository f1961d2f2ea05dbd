// main package for the tts-bridge
package main

import (
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-bridge/internal/config"
	"github.com/spf13/cobra"
)

// File names.
const (
	bootstrapLogFile = "tts-bridge-bootstrap.log"
	serviceLogFile   = "tts-bridge.log"
)

// rootFlags holds the persistent flag values.
type rootFlags struct {
	configPath string
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// loadConfig reads an explicit file when one was given and falls back to the
// central configurator otherwise.
func loadConfig(flags *rootFlags, bootstrapLog *logger.Logger) (*config.Config, error) {
	if flags.configPath != "" {
		cfg, err := config.LoadFile(flags.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}

		return cfg, nil
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// bootstrap creates the temporary logger, loads configuration and opens the
// final logger. The caller owns the returned logger.
func bootstrap(flags *rootFlags) (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return nil, nil, err
	}

	defer func() {
		closeErr := bootstrapLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing bootstrap logger: %v\n", closeErr)
		}
	}()

	cfg, err := loadConfig(flags, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, err
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	return cfg, finalLog, nil
}

func closeLogger(log *logger.Logger) {
	closeErr := log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{configPath: ""}

	root := &cobra.Command{
		Use:           "tts-bridge",
		Short:         "Text-to-speech bridge for chat-bot replies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(
		&flags.configPath, "config", "", "Path to a TOML config file (defaults to the configurator search)",
	)

	root.AddCommand(newServeCommand(flags), newSayCommand(flags))

	return root
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tts-bridge exited with error: %v\n", err)
		os.Exit(1)
	}
}
