package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nexcred/backoffice/internal/batch"
	"github.com/nexcred/backoffice/internal/input"
	"github.com/nexcred/backoffice/internal/model"
)

var (
	batchFile     string
	batchProvider string
	batchOwner    string
	batchEmail    string
	batchCreds    string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Submit a balance-query batch from an identifier file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		provider, err := model.ParseProvider(batchProvider)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if batchCreds != "" {
			if err := loadCredentialsFile(ctx, env, batchCreds, batchOwner); err != nil {
				return err
			}
		}

		identifiers, err := input.ReadIdentifiers(batchFile)
		if err != nil {
			return err
		}
		if len(identifiers) == 0 {
			return eris.Errorf("nenhum identificador encontrado em %s", batchFile)
		}

		job, err := env.Runner.Submit(ctx, batch.SubmitRequest{
			Provider:    provider,
			FileName:    filepath.Base(batchFile),
			Identifiers: identifiers,
			OwnerID:     batchOwner,
			OwnerEmail:  batchEmail,
		})
		if err != nil {
			return err
		}

		zap.L().Info("batch submitted",
			zap.String("job_id", job.ID),
			zap.Int("total", job.Total))

		return watchJob(ctx, env, job.ID)
	},
}

// watchJob polls the job until it reaches a terminal state, printing
// progress.
func watchJob(ctx context.Context, env *appEnv, jobID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("interrompido; lote %s continua em segundo plano\n", jobID)
			return nil
		case <-ticker.C:
		}

		job, err := env.Store.GetJob(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "consultar lote")
		}

		fmt.Printf("\rlote %s: %d/%d", job.ID, job.Processed, job.Total)
		if job.Terminal() {
			fmt.Println()
			if job.Status == model.JobStatusError {
				return eris.Errorf("lote finalizado com erro: %s", job.ErrorMsg)
			}
			fmt.Printf("lote %s concluído\n", job.ID)
			return nil
		}
	}
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "identifier file (.txt, .csv or .xlsx)")
	batchCmd.Flags().StringVar(&batchProvider, "provider", "", "partner provider (v8, facta, c6)")
	batchCmd.Flags().StringVar(&batchOwner, "owner", "cli", "owner id recorded on the job")
	batchCmd.Flags().StringVar(&batchEmail, "email", "", "owner email recorded on the job")
	batchCmd.Flags().StringVar(&batchCreds, "credentials", "", "YAML file with partner credentials to store before running")
	batchCmd.MarkFlagRequired("file")     //nolint:errcheck
	batchCmd.MarkFlagRequired("provider") //nolint:errcheck
	rootCmd.AddCommand(batchCmd)
}
