package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/runview/internal/domain"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
}

// encode writes v as JSON or YAML. YAML keys follow the JSON field names.
func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}
	return checkFormat(format)
}

func renderSnapshot(w io.Writer, format string, snap *domain.Snapshot, cursor int64) error {
	if format != formatTable {
		return encode(w, format, snap)
	}

	fmt.Fprintf(w, "Generated %s from %s (cursor %d)\n\n", formatMillis(snap.GeneratedAt), snap.Source.StateDir, cursor)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tAGENT\tPARENT\tSTATUS\tSPAWNED BY\tCREATED\tTASK")
	for _, run := range snap.Runs {
		spawnedBy := snap.RunGraph.SpawnedByRunID[run.RunID]
		if spawnedBy == "" {
			spawnedBy = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.RunID,
			orDash(run.ChildAgentID),
			orDash(run.ParentAgentID),
			run.Status,
			spawnedBy,
			formatMillis(run.CreatedAt),
			truncate(run.Task, 48),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(snap.Diagnostics) > 0 {
		fmt.Fprintln(w, "\nDiagnostics:")
		for _, d := range snap.Diagnostics {
			fmt.Fprintf(w, "  [%s] %s: %s\n", d.Severity, d.Code, d.Message)
		}
	}
	return nil
}

func renderEvents(w io.Writer, format string, events []domain.ArchivedEvent) error {
	if format != formatTable {
		return encode(w, format, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "No events archived.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tAT\tTYPE\tTEXT")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Seq, formatMillis(e.Event.At), e.Event.Type, e.Event.Text)
	}
	return tw.Flush()
}

func lifecycleLine(env domain.LifecycleEnvelope) string {
	e := env.Event
	return fmt.Sprintf("%s #%d %-7s %s %s", formatMillis(e.At), env.Seq, e.Type, e.RunID, e.Text)
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
