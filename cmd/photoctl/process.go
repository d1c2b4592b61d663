package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/photo-ingest/internal/cli"
)

var processLimit int

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process pending records",
	Long: `Process takes pending records oldest first, verifies each stored object
against its hash, normalizes HEIC, extracts metadata, looks up weather and
marks the record processed. A failing record is reported and left pending;
the rest of the batch continues.`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "Records to take (0 = configured batch size)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	result, err := a.Pipeline.ProcessBatch(ctx, processLimit)
	if err != nil {
		return err
	}

	if jsonFlag {
		return cli.PrintJSON(stdout(cmd), result)
	}
	out := stdout(cmd)
	fmt.Fprintf(out, "run %s: %d attempted, %d processed, %d failed in %s\n",
		result.RunID, result.Attempted, result.Processed, len(result.Errors), cli.FormatDurationShort(time.Since(start)))
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  %s\n", e)
	}
	return nil
}
