// Command caseflow runs complaints through the case workflow.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "caseflow",
	Short:         "Case workflow runner",
	Long:          "Caseflow routes free-form complaints through intake, validation, investigation, resolution and closure.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.StringP("provider", "p", "openai", "Generator provider (openai, anthropic, gemini)")
	flags.StringP("model", "m", "gpt-4o-mini", "Model name")
	flags.String("api-key", "", "Provider API key (defaults to the provider's own environment variable)")
	flags.String("base-url", "", "Provider base URL override")
	flags.Int("retries", 3, "Attempts per generator call, the first one included")
	flags.Int("stage-retries", 1, "Attempts per workflow stage, the first one included")
	flags.Int("max-concurrency", 0, "Maximum concurrent investigation branches (0 = unbounded)")
	flags.String("store", "memory", "Case store (memory, s3)")
	flags.String("s3-bucket", "", "S3 bucket for --store=s3")
	flags.String("s3-prefix", "caseflow", "Key prefix inside the S3 bucket")
	flags.Bool("checkpoints", false, "Save a checkpoint after every stage")
	flags.Bool("trace", false, "Export OpenTelemetry spans to stderr")

	for _, name := range []string{
		"log-level", "log-format", "provider", "model", "api-key", "base-url", "retries",
		"stage-retries", "max-concurrency", "store", "s3-bucket", "s3-prefix", "checkpoints", "trace",
	} {
		_ = viper.BindPFlag(configKey(name), flags.Lookup(name))
	}
}

func initConfig() {
	viper.SetEnvPrefix("CASEFLOW")
	viper.AutomaticEnv()
}

// exitError carries a process exit code that is not a failure of the command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exit *exitError
		code := 1
		if errors.As(err, &exit) {
			code = exit.code
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(code)
	}
}
