package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type OutputFormat struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func Success(w io.Writer, message string, args ...any) {
	fmt.Fprintf(w, "rxscan: "+message+"\n", args...)
}

func Error(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %s\n", err)
}

func Warning(w io.Writer, message string, args ...any) {
	fmt.Fprintf(w, "warning: "+message+"\n", args...)
}

func JSON(w io.Writer, data any) error {
	return json.NewEncoder(w).Encode(OutputFormat{
		Status: "success",
		Data:   data,
	})
}

func JSONError(w io.Writer, err error) error {
	return json.NewEncoder(w).Encode(OutputFormat{
		Status:  "error",
		Message: err.Error(),
	})
}

// Table prints rows as left-aligned columns. The first row is the header.
func Table(w io.Writer, data [][]string) {
	if len(data) == 0 {
		return
	}

	widths := make([]int, len(data[0]))
	for _, row := range data {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	for _, row := range data {
		var b strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(w, b.String())
	}
}

func Size(n int64) string {
	return humanize.IBytes(uint64(max(n, 0)))
}

func Ago(t time.Time) string {
	return humanize.Time(t)
}
