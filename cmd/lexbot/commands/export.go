package commands

import (
	lexmodels "github.com/aws/aws-sdk-go-v2/service/lexmodelbuildingservice"
	"github.com/spf13/cobra"

	"lex-bot-deploy/internal/integrations/download"
	"lex-bot-deploy/internal/integrations/lex"
	"lex-bot-deploy/internal/usecase"
)

func newExportCommand(g *globalOptions) *cobra.Command {
	var in usecase.ExportInput

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a bot version and unpack it locally",
		Example: `  # Export version 1 into the current directory
  lexbot export --bot ScheduleAppointment

  # Export version 3 into ./exports
  lexbot export --bot ScheduleAppointment --version 3 --output-dir ./exports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log, settings, err := g.setup()
			if err != nil {
				return err
			}
			cfg, err := g.awsConfig(ctx, log)
			if err != nil {
				return err
			}
			lexClient, err := lex.New(lexmodels.NewFromConfig(cfg))
			if err != nil {
				return err
			}
			svc, err := usecase.NewExportService(lexClient, download.NewClient(), settings.Poll.Policy(), settings.ExportVersion, log)
			if err != nil {
				return err
			}
			out, err := svc.Export(ctx, in)
			if err != nil {
				return err
			}
			g.printf("exported %s version %s\n", out.BotName, out.Version)
			for _, f := range out.Files {
				g.printf("  %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.BotName, "bot", "", "bot name")
	cmd.Flags().StringVar(&in.Version, "version", "", "bot version (default from settings, 1)")
	cmd.Flags().StringVarP(&in.OutputDir, "output-dir", "o", "", "directory to unpack into (default current directory)")
	_ = cmd.MarkFlagRequired("bot")

	return cmd
}
