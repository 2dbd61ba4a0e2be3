package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/mayconvmartins/mvcashnode-sub004/internal"
)

var (
	configFile  string
	auditDryRun bool
)

var rootCmd = &cobra.Command{
	Use:   "cashnode",
	Short: "Cashnode - position and vault ledger engine",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		return internal.Run(configFile)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a single audit sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return internal.RunAudit(configFile, auditDryRun)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "path to the config file")
	auditCmd.Flags().BoolVar(&auditDryRun, "dry-run", false, "classify only, never repair")
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
