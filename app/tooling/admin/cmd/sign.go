package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/VincentBerthier/bifrost/foundation/ledger/state"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	signTo       []string
	signSequence uint64
	signAmount   uint64
	signData     string
	signOut      string
)

// signCmd represents the sign command.
var signCmd = &cobra.Command{
	Use:       "sign transfer|write|touch",
	Short:     "Sign a transaction and drop it in the inbox",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"transfer", "write", "touch"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := loadKey()
		if err != nil {
			return err
		}

		ns, err := names()
		if err != nil {
			return err
		}

		targets := make([]types.Address, len(signTo))
		for i, to := range signTo {
			if targets[i], err = ns.Resolve(to); err != nil {
				return fmt.Errorf("target %q: %w", to, err)
			}
		}

		var ins types.Instruction
		switch args[0] {
		case "transfer":
			ins = types.Transfer{Amount: signAmount}
		case "write":
			data, err := hexutil.Decode(signData)
			if err != nil {
				return fmt.Errorf("data: %w", err)
			}
			ins = types.Write{Data: data}
		case "touch":
			ins = types.Touch{}
		}

		tx, err := types.NewTransaction(kp.Address(), signSequence, ins, targets...).Sign(kp.PrivateKey)
		if err != nil {
			return err
		}

		raw, err := types.EncodeTransaction(tx)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(signOut, 0o755); err != nil {
			return err
		}

		// The inbox only reads files with the transaction extension, so write
		// under another name first and rename once complete.
		id := uuid.NewString()
		path := filepath.Join(signOut, id+state.TxExtension)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, raw, 0o644); err != nil {
			return err
		}
		if err := os.Rename(tmp, path); err != nil {
			return err
		}

		log.Infow("sign", "id", id, "tx", tx)
		fmt.Println(path)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringSliceVarP(&signTo, "to", "t", nil, "Target names or addresses.")
	signCmd.Flags().Uint64VarP(&signSequence, "sequence", "s", 0, "Current sequence of the sender.")
	signCmd.Flags().Uint64VarP(&signAmount, "amount", "a", 0, "Prisms sent to every target.")
	signCmd.Flags().StringVarP(&signData, "data", "d", "0x", "Hex encoded state blob.")
	signCmd.Flags().StringVarP(&signOut, "inbox", "i", "zledger/inbox", "Directory receiving the signed transaction.")
}
