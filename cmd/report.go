package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/nexcred/backoffice/internal/model"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report <job-id>",
	Short: "Generate the xlsx report for a batch job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Assembler.Generate(ctx, args[0])
		if err != nil {
			return err
		}

		out := reportOut
		if out == "" {
			out = rep.FileName
		} else if info, err := os.Stat(out); err == nil && info.IsDir() {
			out = filepath.Join(out, rep.FileName)
		}

		if err := os.WriteFile(out, rep.Content, 0o644); err != nil {
			return eris.Wrap(err, "gravar relatório")
		}

		job, err := env.Store.GetJob(ctx, args[0])
		if err == nil && job.Status == model.JobStatusProcessing {
			fmt.Println("aviso: lote ainda em processamento, relatório parcial")
		}
		fmt.Printf("relatório gravado em %s\n", out)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "", "output path (default: generated file name)")
	rootCmd.AddCommand(reportCmd)
}
