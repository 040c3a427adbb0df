// Package cmd contains the admin commands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/VincentBerthier/bifrost/foundation/ledger/keys"
	"github.com/VincentBerthier/bifrost/foundation/nameservice"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	log      *zap.SugaredLogger
	keyName  string
	keysPath string
	dbPath   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Administration of the bifrost ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(build string, l *zap.SugaredLogger) error {
	log = l
	rootCmd.Version = build
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&keyName, "key", "k", "private", "Name of the key file.")
	rootCmd.PersistentFlags().StringVarP(&keysPath, "keys-path", "p", "zledger/keys/", "Path to the directory with the key files.")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "zledger/accounts.db", "Path to the account store.")
}

func keyPath(name string) string {
	if !strings.HasSuffix(name, keys.Extension) {
		name += keys.Extension
	}
	return filepath.Join(keysPath, name)
}

func loadKey() (keys.Keypair, error) {
	return keys.Load(keyPath(keyName))
}

func names() (*nameservice.NameService, error) {
	return nameservice.New(keysPath)
}

// storeExists keeps inspection commands from creating an empty store.
func storeExists() error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("store %s: %w", dbPath, err)
	}
	return nil
}
