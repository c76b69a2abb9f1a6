package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/fetcher"
)

var ingestPath string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the local email dataset into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path := ingestPath
		if path == "" {
			path = cfg.Fetch.DatasetPath
		}

		ds, err := fetcher.LoadDataset(path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		inserted, err := st.BulkInsert(ctx, ds.All())
		if err != nil {
			return eris.Wrap(err, "bulk insert dataset")
		}

		total, err := st.CountEmails(ctx)
		if err != nil {
			return eris.Wrap(err, "count emails")
		}

		zap.L().Info("dataset ingested",
			zap.String("path", path),
			zap.Int("dataset_size", ds.Len()),
			zap.Int64("inserted", inserted),
			zap.Int64("total_emails", total),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPath, "dataset", "", "dataset path (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
