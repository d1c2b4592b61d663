package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fpang/photo-ingest/internal/cli"
	"github.com/fpang/photo-ingest/internal/store"
)

var (
	queryLimit  int
	queryRadius float64
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query processed records (SQL and memory stores only)",
}

var queryRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Most recently uploaded processed records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(q store.Querier) ([]*store.ImageRecord, error) {
			return q.Recent(cmd.Context(), queryLimit)
		})
	},
}

var queryRangeCmd = &cobra.Command{
	Use:   "range <start YYYY-MM-DD> <end YYYY-MM-DD>",
	Short: "Records captured between two days, inclusive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(q store.Querier) ([]*store.ImageRecord, error) {
			return q.ByCaptureDate(cmd.Context(), args[0], args[1])
		})
	},
}

var queryNearCmd = &cobra.Command{
	Use:   "near <lat> <lon>",
	Short: "Records captured within --radius km of a point, nearest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lon, err := cli.ParseLatLon(args[0], args[1])
		if err != nil {
			return err
		}
		if queryRadius <= 0 {
			return fmt.Errorf("radius must be positive, got %s", strconv.FormatFloat(queryRadius, 'f', -1, 64))
		}
		return runQuery(cmd, func(q store.Querier) ([]*store.ImageRecord, error) {
			return q.Near(cmd.Context(), lat, lon, queryRadius)
		})
	},
}

var querySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Uploads per day, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func init() {
	queryRecentCmd.Flags().IntVarP(&queryLimit, "limit", "n", 20, "Maximum records")
	queryNearCmd.Flags().Float64VarP(&queryRadius, "radius", "r", 1, "Radius in kilometers")
	queryCmd.AddCommand(queryRecentCmd, queryRangeCmd, queryNearCmd, querySummaryCmd)
}

func runQuery(cmd *cobra.Command, fn func(store.Querier) ([]*store.ImageRecord, error)) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.Querier()
	if err != nil {
		return err
	}
	recs, err := fn(q)
	if err != nil {
		return err
	}
	if jsonFlag {
		return cli.PrintJSON(stdout(cmd), recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(stdout(cmd), "No records.")
		return nil
	}
	return cli.PrintRecords(stdout(cmd), recs)
}

func runSummary(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.Querier()
	if err != nil {
		return err
	}
	days, err := q.UploadSummary(cmd.Context())
	if err != nil {
		return err
	}
	if jsonFlag {
		return cli.PrintJSON(stdout(cmd), days)
	}
	return cli.PrintSummary(stdout(cmd), days)
}
