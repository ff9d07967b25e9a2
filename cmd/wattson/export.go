package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jharkins/wattson/internal/config"
	"github.com/jharkins/wattson/internal/export"
	"github.com/jharkins/wattson/internal/store/postgres"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the full event ledger as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		resolver := export.UsernameResolver(export.StaticResolver{})
		if cfg.UsersFile != "" {
			r, err := export.LoadUsers(cfg.UsersFile)
			if err != nil {
				return err
			}
			resolver = r
		}

		exp, err := export.NewGenerator(store, resolver).GenerateCSV(cmd.Context())
		if err != nil {
			return err
		}
		if exp.RowCount == 0 {
			fmt.Fprintln(os.Stderr, "ledger is empty, nothing to export")
			return nil
		}

		if exportOutput == "-" || exportOutput == "" {
			_, err = os.Stdout.Write(exp.Data)
			return err
		}
		if err := os.WriteFile(exportOutput, exp.Data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d rows to %s\n", exp.RowCount, exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "output file (- for stdout)")
}
