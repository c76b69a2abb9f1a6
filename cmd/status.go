package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/triage-cli/internal/model"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent pipeline runs and store totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		total, err := st.CountEmails(ctx)
		if err != nil {
			return eris.Wrap(err, "count emails")
		}
		maxID, err := st.MaxID(ctx)
		if err != nil {
			return eris.Wrap(err, "max email id")
		}

		runs, err := st.ListRuns(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		fmt.Printf("emails: %d (max id %d)\n\n", total, maxID)

		if len(runs) == 0 {
			fmt.Println("no pipeline runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTATUS\tSTAGE\tEMAIL\tSTARTED\tERROR")
		for _, run := range runs {
			emailID := "-"
			if run.EmailID != nil {
				emailID = fmt.Sprintf("%d", *run.EmailID)
			}
			errMsg := run.Error
			if run.Status != model.RunStatusFailed {
				errMsg = ""
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				run.ID, run.Status, run.Stage, emailID,
				run.StartedAt.Format("2006-01-02 15:04:05"), errMsg)
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}
