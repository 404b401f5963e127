package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
)

const flushIdle = 2 * time.Second

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one SLA scan and deliver the resulting notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApplication(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.sla.RunSlaScan(cmd.Context())
		if err != nil {
			return err
		}
		a.notifier.Flush(cmd.Context(), flushIdle)
		return printJSON(cmd, result)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Poll the support mailbox once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApplication(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.ingestion.RunMailIngestion(cmd.Context())
		if err != nil {
			return err
		}
		a.notifier.Flush(cmd.Context(), flushIdle)
		return printJSON(cmd, result)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
