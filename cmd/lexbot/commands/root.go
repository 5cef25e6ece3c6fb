package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"lex-bot-deploy/internal/config"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	region     string
	logLevel   string
	configPath string
	jsonLogs   bool

	stdout io.Writer
	stderr io.Writer
}

// Execute runs the root command.
func Execute(ctx context.Context, version string) error {
	return newRootCommand(version, os.Stdout, os.Stderr).ExecuteContext(ctx)
}

func newRootCommand(version string, stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "lexbot",
		Short: "Deploy and export Amazon Lex (V1) bots",
		Long: `lexbot imports a bot schema into Amazon Lex, versions every intent and the
bot itself, and points an alias at the new bot version. It can also export
a published bot version back to disk.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVar(&g.region, "region", "", "AWS region (default: ambient configuration, then us-east-1)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "INFO", "DEBUG, INFO, WARNING, ERROR or CRITICAL")
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML settings file")
	rootCmd.PersistentFlags().BoolVar(&g.jsonLogs, "json-logs", false, "write logs as JSON")

	rootCmd.AddCommand(newDeployCommand(g))
	rootCmd.AddCommand(newExportCommand(g))
	rootCmd.AddCommand(newHistoryCommand(g))
	rootCmd.AddCommand(newExamplesCommand(g))

	return rootCmd
}

// setup parses the log level and settings file. The settings file region is
// used when --region is not given.
func (g *globalOptions) setup() (*slog.Logger, config.Settings, error) {
	level, err := config.ParseLevel(g.logLevel)
	if err != nil {
		return nil, config.Settings{}, err
	}
	log := config.NewLogger(g.stderr, level, g.jsonLogs)

	settings, err := config.LoadSettings(g.configPath)
	if err != nil {
		return nil, config.Settings{}, err
	}
	if g.region == "" {
		g.region = settings.Region
	}
	return log, settings, nil
}

func (g *globalOptions) awsConfig(ctx context.Context, log *slog.Logger) (aws.Config, error) {
	cfg, err := config.LoadAWS(ctx, log, g.region)
	if err != nil {
		return aws.Config{}, err
	}
	log.Debug("using region", "region", cfg.Region)
	return cfg, nil
}

func (g *globalOptions) printf(format string, args ...any) {
	fmt.Fprintf(g.stdout, format, args...)
}
