package commands

import (
	"github.com/spf13/cobra"

	"lex-bot-deploy/internal/schema"
)

func newExamplesCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "List the bundled example bot schemas",
		Example: `  # Deploy one of the listed examples
  lexbot deploy --example OrderFlowers`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range schema.Examples() {
				g.printf("%s\n", name)
			}
			return nil
		},
	}
}
