package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vmhost/ledger"
	_ "vmhost/ledger/ibc" // registers the native IBC validity predicate
)

func runVPCmd() *cobra.Command {
	var vpPath, dataPath, configPath, internal, changedKeysCSV string

	cmd := &cobra.Command{
		Use:   "run-vp",
		Short: "Evaluate a single validity predicate against a set of changed keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadHostConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var data []byte
			if dataPath != "" {
				data, err = os.ReadFile(dataPath)
				if err != nil {
					return fmt.Errorf("read data: %w", err)
				}
			}

			var changed []string
			if changedKeysCSV != "" {
				changed = strings.Split(changedKeysCSV, ",")
			}

			storage := ledger.NewMemStorage(cfg.ChainID, 1, [32]byte{}, 0)
			wl := ledger.NewWriteLog()
			gen := ledger.NewAddressGenerator([]byte(cfg.ChainID), 0)

			var addr ledger.Address
			if internal != "" {
				addr = ledger.NewInternal(ledger.InternalID(internal))
			} else {
				if vpPath == "" {
					return fmt.Errorf("either --vp-code or --internal must be set")
				}
				code, err := os.ReadFile(vpPath)
				if err != nil {
					return fmt.Errorf("read vp code: %w", err)
				}
				addr = gen.Next()
				if err := storage.Write(ledger.VPKey(addr), code); err != nil {
					return fmt.Errorf("seed vp code: %w", err)
				}
			}

			verifiers := ledger.NewVerifierSet()
			verifiers.Insert(addr)

			rejectedBy, err := ledger.RunVPs(storage, wl, verifiers, data, changed, cfg.VPGas, log)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			out := map[string]interface{}{
				"address": addr.String(),
				"error":   errString(err),
			}
			if rejectedBy != nil {
				out["accepted"] = false
				out["rejected_by"] = rejectedBy.String()
			} else {
				out["accepted"] = err == nil
			}
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&vpPath, "vp-code", "", "path to the validity predicate's wasm bytecode")
	cmd.Flags().StringVar(&internal, "internal", "", `evaluate a built-in native VP instead (e.g. "ibc")`)
	cmd.Flags().StringVar(&dataPath, "data", "", "path to the transaction's opaque data payload")
	cmd.Flags().StringVar(&changedKeysCSV, "changed-keys", "", "comma-separated keys the transaction touched")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a vmhost YAML config")

	return cmd
}
