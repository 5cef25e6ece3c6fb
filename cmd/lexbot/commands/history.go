package commands

import (
	"errors"
	"time"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"lex-bot-deploy/internal/domain"
	"lex-bot-deploy/internal/repository"
)

func newHistoryCommand(g *globalOptions) *cobra.Command {
	var (
		bot   string
		table string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded deployments of a bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log, settings, err := g.setup()
			if err != nil {
				return err
			}
			if table == "" {
				table = settings.HistoryTable
			}
			if table == "" {
				return errors.New("history: --table or history_table in the settings file is required")
			}
			cfg, err := g.awsConfig(ctx, log)
			if err != nil {
				return err
			}
			store, err := repository.New(awsdynamodb.NewFromConfig(cfg), table)
			if err != nil {
				return err
			}

			latest, ok, err := store.GetLatest(ctx, bot)
			if err != nil {
				return err
			}
			if !ok {
				g.printf("no deployments recorded for %s\n", bot)
				return nil
			}
			g.printf("latest:\n")
			printRecord(g, latest)

			records, err := store.ListDeployments(ctx, bot, limit)
			if err != nil {
				return err
			}
			g.printf("recent:\n")
			for _, rec := range records {
				printRecord(g, rec)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bot, "bot", "", "bot name")
	cmd.Flags().StringVar(&table, "table", "", "DynamoDB table for deployment history")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent deployments to list")
	_ = cmd.MarkFlagRequired("bot")

	return cmd
}

func printRecord(g *globalOptions, rec domain.DeploymentRecord) {
	alias := rec.Alias
	if alias == "" {
		alias = domain.LatestVersion
	}
	line := rec.FinishedAt.Local().Format(time.DateTime) + "  " + rec.DeploymentID + "  " + rec.Outcome +
		"  " + alias + " -> " + rec.BotVersion
	if rec.ErrorCode != "" {
		line += "  (" + rec.ErrorCode + ")"
	}
	g.printf("  %s\n", line)
}
