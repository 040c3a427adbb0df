package cmd

import (
	"fmt"

	"github.com/VincentBerthier/bifrost/foundation/ledger/database"
	"github.com/spf13/cobra"
)

var accountProof bool

// accountCmd represents the account command.
var accountCmd = &cobra.Command{
	Use:   "account name|address",
	Short: "Print the committed state of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, err := names()
		if err != nil {
			return err
		}

		addr, err := ns.Resolve(args[0])
		if err != nil {
			return err
		}

		if err := storeExists(); err != nil {
			return err
		}

		db, err := database.Open(database.Config{Path: dbPath})
		if err != nil {
			return err
		}
		defer db.Close()

		a, exists := db.Committed(addr)
		if !exists {
			return fmt.Errorf("account %s does not exist", ns.Lookup(addr))
		}

		fmt.Printf("Name:     %s\n", ns.Lookup(addr))
		fmt.Printf("Address:  %s\n", a.Address)
		fmt.Printf("Sequence: %d\n", a.Sequence)
		fmt.Printf("Balance:  %d\n", a.Balance)
		fmt.Printf("Data:     %x\n", a.Data)
		fmt.Printf("LastTx:   %s\n", a.LastTx)

		if !accountProof {
			return nil
		}

		p, err := db.Proof(addr)
		if err != nil {
			return err
		}
		if err := p.Verify(); err != nil {
			return fmt.Errorf("proof does not verify: %w", err)
		}

		fmt.Printf("Snapshot: %s\n", p.Snapshot)
		for i, h := range p.Hashes {
			fmt.Printf("Proof[%d]: %x (%d)\n", i, h, p.Order[i])
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.Flags().BoolVar(&accountProof, "proof", false, "Print and check the inclusion proof.")
}
