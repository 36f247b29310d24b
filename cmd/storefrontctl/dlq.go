package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/k-code-yt/go-storefront/internal/config"
	"github.com/k-code-yt/go-storefront/internal/jobs"
	"github.com/k-code-yt/go-storefront/pkg/db/postgres"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
	pkgkafka "github.com/k-code-yt/go-storefront/pkg/kafka"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered jobs",
	}
	cmd.AddCommand(dlqListCmd())
	cmd.AddCommand(dlqReplayCmd())
	return cmd
}

func dlqListCmd() *cobra.Command {
	var (
		limit  int
		all    bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := postgres.NewDBConn(config.JobsPostgresConfig(postgres.NewPostgresConfig("storefront")))
			if err != nil {
				return err
			}
			defer db.Close()

			letters, err := jobs.NewDeadLetterRepo(db).List(cmd.Context(), limit, all)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(letters)
			}
			return printDeadLetters(cmd.OutOrStdout(), letters)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")
	cmd.Flags().BoolVar(&all, "all", false, "include replayed dead letters")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func dlqReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <dedup-key>",
		Short: "Reset a dead job and publish it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg := config.NewAppConfig()
			db, err := postgres.NewDBConn(config.JobsPostgresConfig(postgres.NewPostgresConfig("storefront")))
			if err != nil {
				return err
			}
			defer db.Close()

			kafkaCfg := pkgkafka.NewKafkaConfig()
			producer, err := pkgkafka.NewKafkaProducer(kafkaCfg)
			if err != nil {
				return err
			}
			defer producer.Close()
			encoder, err := pkgkafka.NewMsgEncoder(kafkaCfg.EncoderType, jobs.JobSchema)
			if err != nil {
				return err
			}

			ledger := jobs.NewLedgerRepo(db)
			queue := jobs.NewQueue(ledger, producer, encoder, kafkaCfg.JobsTopic, appCfg.RetryPolicy())
			job, err := queue.Requeue(cmd.Context(), args[0], jobs.NewDeadLetterRepo(db))
			if pkgerrors.IsNonExistingKeyError(err) {
				entry, getErr := ledger.Get(cmd.Context(), args[0])
				if getErr != nil {
					return errors.Join(err, getErr)
				}
				return replayError(args[0], entry)
			}
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"dedupKey": job.DedupKey,
				"eventID":  job.EventID,
			}).Info("DLQ:REPLAYED")
			return nil
		},
	}
}

func printDeadLetters(out io.Writer, letters []jobs.DeadLetter) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEDUP KEY\tEVENT\tATTEMPTS\tFAILED AT\tREPLAYED\tREASON")
	for _, dl := range letters {
		replayed := "-"
		if dl.ReplayedAt != nil {
			replayed = dl.ReplayedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			dl.DedupKey, dl.EventID, dl.Attempts, dl.FailedAt.Format(time.RFC3339), replayed, dl.Reason)
	}
	return w.Flush()
}

func replayError(dedupKey string, entry *jobs.Entry) error {
	if entry == nil {
		return fmt.Errorf("no job %q in the ledger", dedupKey)
	}
	return fmt.Errorf("job %q is %s, nothing to replay", dedupKey, entry.Status)
}
