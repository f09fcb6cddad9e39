package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const fieldSeparator = " | "

// WriteText writes one line per entry in grouped order:
//
//	2026-01-02 | Breakfast | oats | 1 cup
//
// A backslash escapes '|', '\' and newlines inside a field.
func WriteText(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, entry := range Flatten(Group(entries)) {
		fields := []string{
			escapeField(entry.Date),
			escapeField(entry.Meal),
			escapeField(entry.Item),
			escapeField(entry.Quantity),
		}
		if _, err := bw.WriteString(strings.Join(fields, fieldSeparator) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseText reads the output of WriteText. Blank lines are skipped.
func ParseText(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields, err := splitFields(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(fields) != 4 {
			return nil, fmt.Errorf("line %d: expected 4 fields, got %d", line, len(fields))
		}
		entries = append(entries, Entry{
			Date:     fields[0],
			Meal:     fields[1],
			Item:     fields[2],
			Quantity: fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

var fieldEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`, "\n", `\n`, "\r", `\r`)

func escapeField(s string) string {
	return fieldEscaper.Replace(s)
}

// splitFields splits on unescaped '|' and drops the single space WriteText
// puts on each side of a separator.
func splitFields(line string) ([]string, error) {
	var (
		fields  []string
		current strings.Builder
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			switch r {
			case 'n':
				current.WriteRune('\n')
			case 'r':
				current.WriteRune('\r')
			case '\\', '|':
				current.WriteRune(r)
			default:
				return nil, fmt.Errorf("unknown escape \\%c", r)
			}
			escaped = false
		case r == '\\':
			escaped = true
		case r == '|':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		return nil, fmt.Errorf("dangling escape")
	}
	fields = append(fields, current.String())

	for i := range fields {
		if i > 0 {
			fields[i] = strings.TrimPrefix(fields[i], " ")
		}
		if i < len(fields)-1 {
			fields[i] = strings.TrimSuffix(fields[i], " ")
		}
	}
	return fields, nil
}
