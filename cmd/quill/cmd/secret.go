package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/quill/internal/util"
)

const secretBytes = 48

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Print a random value suitable for AUTH_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := util.RandomSecret(secretBytes)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
}
