package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"salesforce-bulk/salesforce/bulk"
	"salesforce-bulk/salesforce/domain"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Authenticate and print the instance URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected: instance=%s api=v%s\n", c.InstanceURL, c.Version)
			return nil
		},
	}
}

func newSOQLCmd(a *app) *cobra.Command {
	var includeDeleted bool
	cmd := &cobra.Command{
		Use:   "soql <query>",
		Short: "Run a SOQL query through the REST API and print the records as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.QueryAll(cmd.Context(), args[0], includeDeleted)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res.Records)
		},
	}
	cmd.Flags().BoolVar(&includeDeleted, "all", false, "include deleted and archived records (queryAll)")
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		includeAll bool
		format     string
		interval   time.Duration
		out        string
	)
	cmd := &cobra.Command{
		Use:   "query <soql>",
		Short: "Run a Bulk API query job and write its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := bulk.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := a.bulk(ctx)
			if err != nil {
				return err
			}

			job, err := b.CreateJobQuery(ctx, args[0], includeAll)
			if err != nil {
				return err
			}
			info, err := job.PollStatus(ctx, interval)
			if err != nil {
				return err
			}
			if info.State != domain.StateJobComplete {
				return fmt.Errorf("query job %s ended %s: %s", job.ID, info.State, info.ErrorMessage)
			}

			res, err := job.GetResults(ctx, f)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, res)
		},
	}
	cmd.Flags().BoolVar(&includeAll, "all", false, "include deleted and archived records (queryAll)")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: dict, reader or csv")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default SF_POLL_INTERVAL)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write results to this file instead of stdout")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	var (
		object     string
		file       string
		externalID string
		interval   time.Duration
		failedOut  string
	)
	cmd := &cobra.Command{
		Use:   "ingest <insert|update|upsert|delete|hard-delete>",
		Short: "Load a CSV file with a Bulk API ingest job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, ok := domain.ParseIngestOperation(args[0])
			if !ok {
				return fmt.Errorf("unknown ingest operation %q", args[0])
			}
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			b, err := a.bulk(ctx)
			if err != nil {
				return err
			}

			job, err := b.CreateJob(ctx, object, op, externalID)
			if err != nil {
				return err
			}
			if err := job.UploadData(ctx, data); err != nil {
				return err
			}
			if err := job.CompleteUpload(ctx); err != nil {
				return err
			}
			info, err := job.PollStatus(ctx, interval)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s: processed=%d failed=%d\n",
				job.ID, info.State, info.NumberRecordsProcessed, info.NumberRecordsFailed)

			if failedOut != "" && !job.IsFailed() {
				outcome, err := job.GetOutcome(ctx, bulk.FormatCSV)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "successful=%d failed=%d unprocessed=%d\n",
					outcome.Successful.Len(), outcome.Failed.Len(), outcome.Unprocessed.Len())
				if err := writeOutput(cmd.OutOrStdout(), failedOut, outcome.Failed); err != nil {
					return err
				}
			}

			switch {
			case job.IsFailed():
				return fmt.Errorf("ingest job %s failed: %s", job.ID, info.ErrorMessage)
			case job.IsAborted():
				return fmt.Errorf("ingest job %s was aborted", job.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&object, "object", "", "sObject API name (e.g. Account)")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "CSV file with a header row (- for stdin)")
	cmd.Flags().StringVar(&externalID, "external-id", "", "external id field (required for upsert)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default SF_POLL_INTERVAL)")
	cmd.Flags().StringVar(&failedOut, "failed-out", "", "write failed records (CSV) to this file")
	_ = cmd.MarkFlagRequired("object")
	return cmd
}

func newJobsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs recorded in the local history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openHistory()
			if err != nil {
				return err
			}
			recs, err := h.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tOPERATION\tOBJECT\tSTATE\tPROCESSED\tFAILED\tUPDATED")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.Operation, r.Object, r.State, r.Processed, r.Failed,
					r.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "how many jobs to show")
	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// writeOutput grava o resultado em path ou, sem path, em w.
// csv sai como veio; dict e reader saem como JSON.
func writeOutput(w io.Writer, path string, res bulk.Result) error {
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		werr := writeResult(f, res)
		if err := f.Close(); err != nil && werr == nil {
			werr = err
		}
		return werr
	}
	return writeResult(w, res)
}

func writeResult(w io.Writer, res bulk.Result) error {
	switch res.Format {
	case bulk.FormatCSV:
		_, err := io.WriteString(w, res.CSV)
		return err
	case bulk.FormatDict:
		return writeJSON(w, res.Records)
	case bulk.FormatReader:
		return writeJSON(w, res.Rows)
	}
	return errors.New("empty result")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
