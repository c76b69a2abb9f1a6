package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/assign"
	"github.com/sells-group/triage-cli/internal/collab"
	"github.com/sells-group/triage-cli/internal/fetcher"
	"github.com/sells-group/triage-cli/internal/pipeline"
	"github.com/sells-group/triage-cli/internal/recorder"
	"github.com/sells-group/triage-cli/internal/resilience"
	"github.com/sells-group/triage-cli/internal/view"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one triage pipeline run",
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

		retry := resilience.DefaultRetryConfig()
		if cfg.Fetch.MaxAttempts > 0 {
			retry.MaxAttempts = cfg.Fetch.MaxAttempts
		}
		if cfg.Fetch.BackoffMillis > 0 {
			retry.BaseDelay = time.Duration(cfg.Fetch.BackoffMillis) * time.Millisecond
		}

		var f fetcher.Fetcher = fetcher.NewHTTP(fetcher.HTTPOptions{
			SourceURL: cfg.Fetch.SourceURL,
			Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			Retry:     retry,
		})
		if cfg.Fetch.FallbackEnabled {
			f = fetcher.NewFallback(f, cfg.Fetch.DatasetPath)
		}

		assigner, err := assign.New(cfg.Assign.Strategy)
		if err != nil {
			return err
		}

		collabs, err := collab.New(collab.Options{
			Provider:      cfg.Collab.Provider,
			AnthropicKey:  cfg.Collab.AnthropicKey,
			Model:         cfg.Collab.Model,
			TemplatesPath: cfg.Collab.TemplatesPath,
		})
		if err != nil {
			return err
		}

		rec := recorder.New(st, view.New(cfg.View.Path))

		p := pipeline.New(st, f, assigner, collabs, rec,
			time.Duration(cfg.Pipeline.TimeoutSecs)*time.Second)

		result, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("triage complete",
			zap.Int64("email_id", result.Email.ID),
			zap.String("intent", result.Intent),
			zap.Int("urgency", result.Urgency),
			zap.String("strategy", assigner.Name()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
