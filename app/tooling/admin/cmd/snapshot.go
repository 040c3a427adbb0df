package cmd

import (
	"fmt"

	"github.com/VincentBerthier/bifrost/foundation/ledger/database"
	"github.com/spf13/cobra"
)

// snapshotCmd represents the snapshot command.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the header of the last durable commit",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := database.ReadHeader(dbPath)
		if err != nil {
			return err
		}

		fmt.Printf("Version:    %d\n", h.Version)
		fmt.Printf("Generation: %d\n", h.Generation)
		fmt.Printf("Records:    %d\n", h.Count)
		fmt.Printf("Tail:       %d\n", h.Tail)
		fmt.Printf("Snapshot:   %s\n", h.Snapshot)

		return nil
	},
}

// compactCmd represents the compact command.
var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Drop superseded records from a store that is not being served",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := storeExists(); err != nil {
			return err
		}

		db, err := database.Open(database.Config{
			Path: dbPath,
			EvHandler: func(v string, args ...any) {
				log.Infow(fmt.Sprintf(v, args...))
			},
		})
		if err != nil {
			return err
		}
		defer db.Close()

		used, garbage := db.Live()
		if err := db.Compact(); err != nil {
			return err
		}

		log.Infow("compact", "live", used, "reclaimed", garbage, "snapshot", db.Snapshot())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(compactCmd)
}
