package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List enrolled profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := resolveContext()
		if err != nil {
			return err
		}
		client, err := newVerifyClient(ctx)
		if err != nil {
			return err
		}
		profiles, err := client.ListProfiles(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(profiles)
		}
		if len(profiles) == 0 {
			fmt.Println("No profiles enrolled.")
			return nil
		}
		w := newTabWriter()
		fmt.Fprintln(w, "NAME\tFACE\tVOICE\tMODES")
		for _, p := range profiles {
			modes := make([]string, len(p.Modes))
			for i, m := range p.Modes {
				modes[i] = string(m)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				p.Name, yesNo(p.HasFaceModel), yesNo(p.HasVoiceModel),
				strings.Join(modes, ","))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
