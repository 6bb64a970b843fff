package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"structurizer/internal/models"
)

func colorStage(s models.StageStatus) string {
	switch s {
	case models.StageStatusCompleted:
		return color.GreenString(string(s))
	case models.StageStatusRunning:
		return color.CyanString(string(s))
	case models.StageStatusFailed:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

func colorSource(s models.SourceStatus) string {
	switch s {
	case models.SourceStatusCompleted:
		return color.GreenString(string(s))
	case models.SourceStatusFailed:
		return color.RedString(string(s))
	case models.SourceStatusUploading, models.SourceStatusProcessing:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}

// renderStages prints the stage vector as a table.
func renderStages(w io.Writer, snap models.Snapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Stage", "Status", "Message", "Error"})
	table.SetBorder(true)
	table.SetRowLine(true)
	for i, st := range snap.Stages {
		table.Append([]string{
			strconv.Itoa(i + 1),
			string(st.ID),
			colorStage(st.Status),
			st.Message,
			st.Error,
		})
	}
	table.Render()
}

// renderSources prints the batch as a table.
func renderSources(w io.Writer, sources []models.Source) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Kind", "Name", "Size", "Status", "Error"})
	table.SetBorder(true)
	for _, s := range sources {
		name := s.Name
		if s.Kind == models.SourceKindURL {
			name = s.URL
		}
		size := ""
		if s.Kind == models.SourceKindFile {
			size = strconv.FormatInt(s.Size, 10)
		}
		table.Append([]string{s.ID[:min(8, len(s.ID))], string(s.Kind), name, size, colorSource(s.Status), s.Error})
	}
	table.Render()
}

// printLogs writes every log line after the first printed ones and returns the new
// count. Logs restart when a new run resets them.
func printLogs(w io.Writer, snap models.Snapshot, printed int) int {
	if printed > len(snap.Job.Logs) {
		printed = 0
	}
	for _, entry := range snap.Job.Logs[printed:] {
		fmt.Fprintf(w, "%s %s\n", color.HiBlackString("[%s]", entry.Time.Format("15:04:05")), entry.Message)
	}
	return len(snap.Job.Logs)
}

func printResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		fmt.Fprintln(w, string(result))
		return
	}
	fmt.Fprintln(w, buf.String())
}
