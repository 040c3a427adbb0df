package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/VincentBerthier/bifrost/foundation/ledger/genesis"
	"github.com/VincentBerthier/bifrost/foundation/ledger/pipeline"
	"github.com/VincentBerthier/bifrost/foundation/ledger/state"
	"github.com/spf13/cobra"
)

var applyGenesis string

// applyCmd represents the apply command.
var applyCmd = &cobra.Command{
	Use:   "apply file.tx...",
	Short: "Run encoded transactions against a store that is not being served",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reqs := make([]pipeline.Request, len(args))
		for i, path := range args {
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			reqs[i] = pipeline.Request{ID: strings.TrimSuffix(filepath.Base(path), state.TxExtension), Raw: raw}
		}

		var gen genesis.Genesis
		if applyGenesis != "" {
			var err error
			if gen, err = genesis.Load(applyGenesis); err != nil {
				return err
			}
		}

		engine, err := state.New(state.Config{
			DBPath:  dbPath,
			Genesis: gen,
			EvHandler: func(v string, args ...any) {
				log.Infow(fmt.Sprintf(v, args...))
			},
		})
		if err != nil {
			return err
		}

		results := engine.SubmitBatch(context.Background(), reqs)
		if err := engine.Shutdown(); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, r := range results {
			if err := enc.Encode(state.NewOutcome(r)); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringVarP(&applyGenesis, "genesis", "g", "", "Genesis used when the store is fresh.")
}
