// Command vmhost drives the ledger package's transaction/VP host
// environment from the outside: running one transaction, evaluating one
// validity predicate in isolation, or serving the same over HTTP.
//
// Grounded on cmd/synnergy/main.go's single-file rootCmd + AddCommand
// layout and core/virtual_machine.go's main() bootstrap (mode flag,
// logrus JSON formatter, rate-limited HTTP surface).
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logrus.New()

func main() {
	_ = godotenv.Load(".env")
	viper.AutomaticEnv()
	log.SetFormatter(&logrus.JSONFormatter{})

	rootCmd := &cobra.Command{Use: "vmhost"}
	rootCmd.AddCommand(runTxCmd())
	rootCmd.AddCommand(runVPCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("vmhost")
		os.Exit(1)
	}
}
