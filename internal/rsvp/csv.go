// Package rsvp turns an uploaded invite list into invited registrations and mails each
// invitee their PIN.
package rsvp

import (
	"bytes"
	"fmt"
	"strings"
)

var bom = []byte("\xef\xbb\xbf")

// Record is one parsed CSV row and the file line it started on.
type Record struct {
	Line   int
	Fields []string
}

// blank reports whether every field is empty after trimming.
func (r Record) blank() bool {
	for _, f := range r.Fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ParseError is a file-level syntax error.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ParseCSV tokenizes comma-separated data. It strips a leading byte-order mark, accepts CRLF
// and LF line endings, honours double-quoted fields with "" as an escaped quote, and drops
// rows whose fields are all blank. Commas, quotes and newlines inside quotes are literal.
// An unterminated quote is a *ParseError.
func ParseCSV(data []byte) ([]Record, error) {
	data = bytes.TrimPrefix(data, bom)
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	var (
		records   []Record
		fields    []string
		field     strings.Builder
		inQuotes  bool
		line      = 1
		start     = 1
		quoteLine int
		dirty     bool
	)
	endRecord := func() {
		fields = append(fields, field.String())
		field.Reset()
		rec := Record{Line: start, Fields: fields}
		if !rec.blank() {
			records = append(records, rec)
		}
		fields = nil
		dirty = false
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inQuotes {
			switch {
			case ch == '"' && i+1 < len(text) && text[i+1] == '"':
				field.WriteByte('"')
				i++
			case ch == '"':
				inQuotes = false
			default:
				if ch == '\n' {
					line++
				}
				field.WriteByte(ch)
			}
			continue
		}
		switch ch {
		case '"':
			inQuotes = true
			quoteLine = line
			dirty = true
		case ',':
			fields = append(fields, field.String())
			field.Reset()
			dirty = true
		case '\n':
			endRecord()
			line++
			start = line
		default:
			field.WriteByte(ch)
			dirty = true
		}
	}
	if inQuotes {
		return nil, &ParseError{Line: quoteLine, Msg: "unterminated quoted field"}
	}
	if dirty {
		endRecord()
	}
	return records, nil
}
