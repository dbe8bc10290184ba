package version

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const jsonFlag = "json"

// AddVersionCommand adds the version command to the root command.
func AddVersionCommand(rootCmd *cobra.Command, binaryName string) {
	rootCmd.AddCommand(CommandVersion(binaryName))
}

// CommandVersion prints cmd version
func CommandVersion(binaryName string) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "version",
		Short:   "Prints version of this binary.",
		Aliases: []string{"v"},
		Example: fmt.Sprintf("%s version --json", binaryName),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, err := cmd.Flags().GetBool(jsonFlag)
			if err != nil {
				return fmt.Errorf("failed to read flag %s: %w", jsonFlag, err)
			}

			info := Get()
			out := cmd.OutOrStdout()

			if asJSON {
				bz, err := json.Marshal(info)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s\n", bz)

				return err
			}

			var sb strings.Builder
			_, _ = sb.WriteString("Version:       " + info.Version + "\n")
			_, _ = sb.WriteString("Git Commit:    " + info.Commit + "\n")
			_, _ = sb.WriteString("Git Timestamp: " + info.Timestamp + "\n")

			_, err = fmt.Fprint(out, sb.String())

			return err
		},
	}
	cmd.Flags().Bool(jsonFlag, false, "Print the version information as JSON")

	return cmd
}
