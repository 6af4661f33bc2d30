package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/internal/history"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyQuery history.Query
	historySince time.Duration
	historyPrune time.Duration

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recent synthesis requests",
		Example: paragraph("chunkvoice history\n" +
			"chunkvoice history --failed --since 24h\n" +
			"chunkvoice history --prune 720h"),
		Args: cobra.NoArgs,
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyQuery.Limit, "limit", "l", history.DefaultLimit, "number of requests to show")
	historyCmd.Flags().StringVar(&historyQuery.Mode, "mode", "", "only show requests of this mode (play or file)")
	historyCmd.Flags().BoolVar(&historyQuery.FailedOnly, "failed", false, "only show failed requests")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only show requests newer than this")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "delete requests older than this and exit")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in %s", configFile)
	}

	ctx := cmd.Context()
	store, err := openHistory(ctx, cfg.History, log.Default())
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	if historyPrune > 0 {
		n, err := store.Prune(ctx, time.Now().Add(-historyPrune))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s.\n", humanize.Comma(n), plural(n, "request"))
		return nil
	}

	q := historyQuery
	if historySince > 0 {
		q.Since = time.Now().Add(-historySince)
	}
	records, err := store.List(ctx, q)
	if err != nil {
		return err
	}
	sum, err := store.Summarize(ctx)
	if err != nil {
		return err
	}

	return printHistory(cmd.OutOrStdout(), records, sum, time.Now())
}

func printHistory(w io.Writer, records []tts.Record, sum history.Summary, now time.Time) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, faint("No requests yet."))
		return err //nolint:wrapcheck
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("WHEN", "MODE", "CHUNKS", "AUDIO", "TOOK", "RESULT")
	for _, r := range records {
		t.Row(
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Mode,
			strconv.Itoa(r.Chunks),
			audioLength(r).String(),
			r.Elapsed.Round(time.Millisecond).String(),
			resultOf(r),
		)
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n", t.Render(), faint(fmt.Sprintf("%s %s, %s failed, %s of audio",
		humanize.Comma(int64(sum.Requests)), plural(int64(sum.Requests), "request"),
		humanize.Comma(int64(sum.Failed)), sum.Audio.Round(time.Second))))
	return err //nolint:wrapcheck
}

func audioLength(r tts.Record) time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	d := time.Duration(r.Samples) * time.Second / time.Duration(r.SampleRate)
	return d.Round(10 * time.Millisecond) //nolint:mnd
}

func resultOf(r tts.Record) string {
	switch {
	case r.Code != "":
		return failure(string(r.Code) + " " + r.Message)
	case r.Path != "":
		return success(r.Path)
	default:
		return success("played")
	}
}

func plural(n int64, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
