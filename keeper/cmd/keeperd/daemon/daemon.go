package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// AddDaemonCommands adds the keeperd daemon and commitment commands.
func AddDaemonCommands(cmd *cobra.Command) {
	cmd.AddCommand(
		CommandInit(cmd.Name()),
		CommandStart(cmd.Name()),
		CommandAddCommitment(cmd.Name()),
		CommandListCommitments(cmd.Name()),
		CommandReveal(cmd.Name()),
	)
}

func printRespJSON(cmd *cobra.Command, resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to encode response: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonBytes)

	return err
}
