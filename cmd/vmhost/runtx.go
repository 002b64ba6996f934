package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vmhost/ledger"
)

func runTxCmd() *cobra.Command {
	var codePath, dataPath, configPath string

	cmd := &cobra.Command{
		Use:   "run-tx",
		Short: "Execute one transaction's guest code against a fresh in-memory chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadHostConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			code, err := os.ReadFile(codePath)
			if err != nil {
				return fmt.Errorf("read code: %w", err)
			}
			var data []byte
			if dataPath != "" {
				data, err = os.ReadFile(dataPath)
				if err != nil {
					return fmt.Errorf("read data: %w", err)
				}
			}

			storage := ledger.NewMemStorage(cfg.ChainID, 1, [32]byte{}, 0)
			wl := ledger.NewWriteLog()
			gasMeter := ledger.NewBlockGasMeter(cfg.BlockGas)
			gen := ledger.NewAddressGenerator([]byte(cfg.ChainID), 0)

			result := ledger.RunTx(storage, wl, gasMeter, gen, ledger.Tx{Code: code, Data: data}, cfg.VPGas, log)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"accepted":     result.Accepted,
				"rejected_by":  result.RejectedBy.String(),
				"gas_used":     result.GasUsed,
				"error":        errString(result.Err),
				"changed_keys": result.ChangedKeys,
			})
		},
	}

	cmd.Flags().StringVar(&codePath, "code", "", "path to the transaction's wasm bytecode")
	cmd.Flags().StringVar(&dataPath, "data", "", "path to the transaction's opaque data payload")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a vmhost YAML config")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
