package commands

import (
	"fmt"
	"strings"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	lexmodels "github.com/aws/aws-sdk-go-v2/service/lexmodelbuildingservice"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"

	"lex-bot-deploy/internal/domain"
	"lex-bot-deploy/internal/integrations/lex"
	"lex-bot-deploy/internal/integrations/paramstore"
	"lex-bot-deploy/internal/integrations/permissions"
	"lex-bot-deploy/internal/repository"
	"lex-bot-deploy/internal/usecase"
)

func newDeployCommand(g *globalOptions) *cobra.Command {
	var (
		in    usecase.DeployInput
		table string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Import a bot schema and publish it under an alias",
		Long: `Import a bot schema, create a version of every intent and of the bot, and
point the alias at the new bot version. Without --alias the bot is built on
$LATEST only. Re-running after a failure is safe.`,
		Example: `  # Deploy a bundled example on $LATEST
  lexbot deploy --example ScheduleAppointment

  # Deploy a schema file to the prod alias, rewriting its code hooks
  lexbot deploy --schema ./MyBot_Export.json --alias prod \
    --lambda-endpoint arn:aws:lambda:us-east-1:123456789012:function:my-hook`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log, settings, err := g.setup()
			if err != nil {
				return err
			}
			if table == "" {
				table = settings.HistoryTable
			}
			cfg, err := g.awsConfig(ctx, log)
			if err != nil {
				return err
			}

			lexClient, err := lex.New(lexmodels.NewFromConfig(cfg))
			if err != nil {
				return err
			}
			permClient, err := permissions.New(awslambda.NewFromConfig(cfg), sts.NewFromConfig(cfg))
			if err != nil {
				return err
			}
			reconciler, err := usecase.NewPermissionReconciler(permClient, permClient, cfg.Region, log)
			if err != nil {
				return err
			}

			opts := []usecase.DeployOption{usecase.WithAliasDescription(settings.AliasDescription)}
			if in.LambdaEndpointParam != "" {
				params, err := paramstore.New(awsssm.NewFromConfig(cfg))
				if err != nil {
					return err
				}
				opts = append(opts, usecase.WithParamStore(params))
			}
			if table != "" {
				history, err := repository.New(awsdynamodb.NewFromConfig(cfg), table)
				if err != nil {
					return err
				}
				opts = append(opts, usecase.WithHistory(history))
			}

			svc, err := usecase.NewDeployService(lexClient, reconciler, settings.Conflict.Policy(), settings.Poll.Policy(), log, opts...)
			if err != nil {
				return err
			}
			out, err := svc.Deploy(ctx, in)
			if err != nil {
				return err
			}
			printDeployment(g, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.SchemaFile, "schema", "", "bot schema JSON file")
	cmd.Flags().StringVar(&in.Example, "example", "", "bundled example to deploy (see lexbot examples)")
	cmd.Flags().StringVar(&in.Alias, "alias", "", "alias to publish (default $LATEST only)")
	cmd.Flags().StringVar(&in.LambdaEndpoint, "lambda-endpoint", "", "Lambda ARN that replaces every code hook in the schema")
	cmd.Flags().StringVar(&in.LambdaEndpointParam, "lambda-endpoint-param", "", "SSM parameter holding the replacement Lambda ARN")
	cmd.Flags().StringVar(&table, "table", "", "DynamoDB table for deployment history")
	cmd.MarkFlagsMutuallyExclusive("schema", "example")
	cmd.MarkFlagsOneRequired("schema", "example")

	return cmd
}

func printDeployment(g *globalOptions, out usecase.DeployOutput) {
	alias := out.Alias
	if alias == "" {
		alias = domain.LatestVersion
	}
	g.printf("deployment %s: %s\n", out.DeploymentID, out.Outcome)
	g.printf("bot:      %s\n", out.BotName)
	g.printf("alias:    %s -> version %s\n", alias, out.BotVersion)
	intents := make([]string, 0, len(out.IntentVersions))
	for _, iv := range out.IntentVersions {
		intents = append(intents, fmt.Sprintf("%s:%s", iv.IntentName, iv.IntentVersion))
	}
	g.printf("intents:  %s\n", strings.Join(intents, ", "))
	if n := len(out.Replacements); n > 0 {
		g.printf("endpoints replaced: %d\n", n)
	}
	p := out.Permissions
	if p.Skipped {
		g.printf("permissions: skipped (account unknown)\n")
	} else if len(p.Granted)+len(p.Existing)+len(p.Failed) > 0 {
		g.printf("permissions: %d granted, %d existing, %d failed\n", len(p.Granted), len(p.Existing), len(p.Failed))
	}
}
