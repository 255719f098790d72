package cli

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

const tablePadding = 2

// writeTable prints rows aligned by display width. Cells come from remote
// users, so escape sequences are dropped rather than passed to the terminal.
func writeTable(out io.Writer, headers []string, rows [][]string) error {
	all := make([][]string, 0, len(rows)+1)
	if len(headers) > 0 {
		all = append(all, headers)
	}
	all = append(all, rows...)

	var widths []int
	for i, row := range all {
		clean := make([]string, len(row))
		for col, cell := range row {
			clean[col] = stripANSI(cell)
			if col >= len(widths) {
				widths = append(widths, 0)
			}
			widths[col] = max(widths[col], runewidth.StringWidth(clean[col]))
		}
		all[i] = clean
	}
	if len(widths) == 0 {
		return nil
	}

	w := bufio.NewWriter(out)
	for _, row := range all {
		var line strings.Builder
		for col := range widths {
			cell := ""
			if col < len(row) {
				cell = row[col]
			}
			if col == len(widths)-1 {
				line.WriteString(cell)
				break
			}
			line.WriteString(runewidth.FillRight(cell, widths[col]+tablePadding))
		}
		line.WriteByte('\n')
		if _, err := w.WriteString(line.String()); err != nil {
			return err
		}
	}
	return w.Flush()
}

func formatYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// truncate shortens value to at most width display columns.
func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	return runewidth.Truncate(value, width, "…")
}

func formatPrice(price float64) string {
	if price == 0 {
		return "-"
	}
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func displayName(id, name string) string {
	if strings.TrimSpace(name) == "" {
		return id
	}
	return name
}

func stripANSI(value string) string {
	if value == "" {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != 0x1b || i+1 >= len(value) || value[i+1] != '[' {
			b.WriteByte(value[i])
			continue
		}
		i += 2
		for i < len(value) {
			ch := value[i]
			if ch >= 0x40 && ch <= 0x7e {
				break
			}
			i++
		}
	}
	return b.String()
}
