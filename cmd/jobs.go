package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/internal/store"
)

var (
	jobsProvider string
	jobsStatus   string
	jobsLimit    int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List batch jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter := store.JobFilter{Limit: jobsLimit}
		if jobsProvider != "" {
			p, err := model.ParseProvider(jobsProvider)
			if err != nil {
				return err
			}
			filter.Provider = p
		}
		if jobsStatus != "" {
			filter.Status = model.JobStatus(jobsStatus)
		}

		jobs, err := env.Store.ListJobs(ctx, filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROVEDOR\tARQUIVO\tPROGRESSO\tSITUAÇÃO\tCRIADO EM")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				j.ID, j.Provider, j.FileName, j.Processed, j.Total, j.Status,
				j.CreatedAt.Format("02/01/2006 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsProvider, "provider", "", "filter by provider")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (processing, completed, error)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "max jobs to list")
	rootCmd.AddCommand(jobsCmd)
}
