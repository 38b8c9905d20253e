package rsvp

import (
	"fmt"
	"strings"

	"github.com/confreg/backend/internal/validate"
)

// Role is the parsed role code of an invite row.
type Role struct {
	Organizer bool
	Presenter bool
}

// ParseRole accepts "", "O", "P", "OP" and "PO", case-insensitively.
func ParseRole(code string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "":
		return Role{}, true
	case "O":
		return Role{Organizer: true}, true
	case "P":
		return Role{Presenter: true}, true
	case "OP", "PO":
		return Role{Organizer: true, Presenter: true}, true
	}
	return Role{}, false
}

// Row is one candidate invite with any problems found.
type Row struct {
	Line     int
	Email    string
	Name     string
	Role     Role
	Problems []string
}

// Issue is the per-row problem report returned to the uploader.
type Issue struct {
	Row      int      `json:"row"`
	Problems []string `json:"problems"`
}

// IssuesError rejects a whole upload.
type IssuesError struct {
	Issues []Issue
}

func (e *IssuesError) Error() string {
	return fmt.Sprintf("%d row(s) have problems", len(e.Issues))
}

// isHeader reports whether a record looks like a column header row.
func isHeader(r Record) bool {
	if len(r.Fields) < 2 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(r.Fields[0]))
	second := strings.ToLower(strings.TrimSpace(r.Fields[1]))
	return first == "email" || (strings.Contains(first, "email") && strings.Contains(second, "name"))
}

// BuildRows drops a leading header and validates each record: email, name, role code,
// no extra columns and no repeated email within the file.
func BuildRows(records []Record) []Row {
	if len(records) > 0 && isHeader(records[0]) {
		records = records[1:]
	}
	rows := make([]Row, 0, len(records))
	firstSeen := make(map[string]int)
	for _, rec := range records {
		row := Row{Line: rec.Line}
		col := func(i int) string {
			if i < len(rec.Fields) {
				return strings.TrimSpace(rec.Fields[i])
			}
			return ""
		}

		row.Email = validate.NormalizeEmail(col(0))
		switch {
		case row.Email == "":
			row.Problems = append(row.Problems, "missing email")
		case !validate.IsEmail(row.Email):
			row.Problems = append(row.Problems, fmt.Sprintf("invalid email %q", row.Email))
		}

		row.Name = col(1)
		if row.Name == "" {
			row.Problems = append(row.Problems, "missing name")
		}

		role, ok := ParseRole(col(2))
		if !ok {
			row.Problems = append(row.Problems, fmt.Sprintf("invalid role %q (use blank, O, P or OP)", col(2)))
		}
		row.Role = role

		for i := 3; i < len(rec.Fields); i++ {
			if col(i) != "" {
				row.Problems = append(row.Problems, fmt.Sprintf("unexpected extra data in column %d", i+1))
				break
			}
		}

		if row.Email != "" {
			if line, dup := firstSeen[row.Email]; dup {
				row.Problems = append(row.Problems, fmt.Sprintf("duplicate email (first on row %d)", line))
			} else {
				firstSeen[row.Email] = row.Line
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// issues collects the rows that have problems.
func issues(rows []Row) []Issue {
	var out []Issue
	for _, r := range rows {
		if len(r.Problems) > 0 {
			out = append(out, Issue{Row: r.Line, Problems: r.Problems})
		}
	}
	return out
}
