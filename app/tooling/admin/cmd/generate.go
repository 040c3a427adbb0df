package cmd

import (
	"fmt"
	"os"

	"github.com/VincentBerthier/bifrost/foundation/ledger/keys"
	"github.com/spf13/cobra"
)

var (
	genSeed  uint64
	genIndex int
	genForce bool
)

// generateCmd represents the generate command.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair",
	Long: `Generate a new key pair and store it in the key folder. With --seed the
key is the index-th one of the deterministic sequence for that seed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var src keys.Source = keys.NewSecure()
		if cmd.Flags().Changed("seed") {
			src = keys.NewSeeded(genSeed)
		}

		var kp keys.Keypair
		for i := 0; i <= genIndex; i++ {
			var err error
			if kp, err = src.GenerateKeypair(); err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
		}

		path := keyPath(keyName)
		if _, err := os.Stat(path); err == nil && !genForce {
			return fmt.Errorf("key file %s already exists", path)
		}

		if err := keys.Save(path, kp); err != nil {
			return err
		}

		log.Infow("generate", "path", path, "address", kp.Address())
		fmt.Println(kp.Address())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().Uint64Var(&genSeed, "seed", 0, "Seed of a deterministic key sequence.")
	generateCmd.Flags().IntVar(&genIndex, "index", 0, "Position of the key in the seeded sequence.")
	generateCmd.Flags().BoolVarP(&genForce, "force", "f", false, "Overwrite an existing key file.")
}
