package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nexcred/backoffice/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "backoffice",
	Short: "Back office de originação de crédito consignado",
	Long:  "Consulta saldos FGTS/CLT em lote nos parceiros V8, Facta e C6, correlaciona retornos por webhook e gera relatórios em planilha.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
