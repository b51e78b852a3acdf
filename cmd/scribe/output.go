package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"scribe/internal/tasks"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"

	resultPreviewWidth = 60
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML encodes v as YAML to the command's stdout.
func writeYAML(cmd *cobra.Command, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// taskView is the stable machine-readable shape of a task.
type taskView struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Status    string `json:"status" yaml:"status"`
	Result    string `json:"result" yaml:"result"`
	CreatedAt string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

func toTaskViews(list []tasks.Task) []taskView {
	views := make([]taskView, 0, len(list))
	for _, task := range list {
		view := taskView{
			ID:     task.ID,
			Name:   task.Name,
			Status: task.Status.String(),
			Result: task.Result,
		}
		if !task.CreatedAt.IsZero() {
			view.CreatedAt = task.CreatedAt.UTC().Format(time.RFC3339)
		}
		views = append(views, view)
	}
	return views
}

func writeTasks(cmd *cobra.Command, format string, list []tasks.Task) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", outputTable:
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No transcriptions yet.")
			return nil
		}
		fmt.Fprintln(out, renderTaskTable(list, shouldColorize(out)))
		return nil
	case outputJSON:
		return writeJSON(cmd, toTaskViews(list))
	case outputYAML:
		return writeYAML(cmd, toTaskViews(list))
	default:
		return fmt.Errorf("unsupported output format %q (use table, json, or yaml)", format)
	}
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func renderTaskTable(list []tasks.Task, colorize bool) string {
	headers := []string{"Name", "ID", "Status", "Created", "Result"}
	rows := make([][]string, 0, len(list))
	for _, task := range list {
		created := "-"
		if !task.CreatedAt.IsZero() {
			created = task.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			task.Name,
			task.ID,
			statusLabel(task.Status, colorize),
			created,
			resultPreview(task),
		})
	}
	return renderTable(headers, rows, nil)
}

func statusLabel(status tasks.Status, colorize bool) string {
	label := status.String()
	if !colorize {
		return label
	}
	switch status {
	case tasks.StatusSuccess:
		return text.Colors{text.FgGreen}.Sprint(label)
	case tasks.StatusFailure:
		return text.Colors{text.FgRed}.Sprint(label)
	case tasks.StatusPending, tasks.StatusProcessing:
		return text.Colors{text.FgYellow}.Sprint(label)
	default:
		return text.Colors{text.FgHiBlack}.Sprint(label)
	}
}

func resultPreview(task tasks.Task) string {
	if !task.Status.Terminal() {
		return "…"
	}
	if task.Status == tasks.StatusFailure && task.Result == "" {
		return "(failed)"
	}
	result := strings.Join(strings.Fields(task.Result), " ")
	return text.Trim(result, resultPreviewWidth)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
