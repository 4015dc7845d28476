package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/trajstore/pkg/trajstore"
)

const modulePath = "github.com/mesh-intelligence/trajstore"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the trajstore version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "trajstore v%s\nmodule: %s\n", trajstore.Version, modulePath)
			return nil
		},
	}
}
