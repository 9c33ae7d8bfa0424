package flags

import (
	"github.com/spf13/cobra"
)

func AddPaste(cmd *cobra.Command) {
	cmd.Flags().
		Bool("paste", false, "Use the clipboard contents as the node text.")
}

func HandlePaste(cmd *cobra.Command) (bool, error) {
	return cmd.Flags().GetBool("paste")
}
