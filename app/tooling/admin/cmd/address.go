package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// addressCmd represents the address command.
var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the address of a key file",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := loadKey()
		if err != nil {
			return err
		}

		fmt.Println(kp.Address())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addressCmd)
}
