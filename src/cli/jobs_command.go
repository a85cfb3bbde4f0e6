package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	jobstorage "github.com/veedubyou/stemsplit/src/shared/job/storage"
)

func newJobsCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recorded jobs from a SQLite record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := jobstorage.OpenSQLite(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := store.ListRecentJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					job.Owner,
					string(job.State),
					strconv.Itoa(job.Progress) + "%",
					job.CreatedAt.Local().Format(time.DateTime),
					jobDetail(job),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Owner", "State", "Progress", "Created", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the SQLite job database")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to show")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func jobDetail(job jobentity.Job) string {
	switch {
	case job.Error != nil:
		return fmt.Sprintf("%s: %s", job.Error.Kind, job.Error.Message)
	case len(job.StemOutputs) > 0:
		return fmt.Sprintf("%d stems", len(job.StemOutputs))
	case job.InputName != "":
		return job.InputName
	default:
		return ""
	}
}
