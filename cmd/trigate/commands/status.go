package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check scoring service health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := resolveContext()
		if err != nil {
			return err
		}
		client, err := newVerifyClient(ctx)
		if err != nil {
			return err
		}
		printVerbose("checking %s", ctx.ServiceURL)
		health, err := client.Health(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(health)
		}
		fmt.Printf("Status: %s\n", health.Status)
		fmt.Printf("  face models:  %d\n", health.FaceModelsLoaded)
		fmt.Printf("  voice models: %d\n", health.VoiceModelsLoaded)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
