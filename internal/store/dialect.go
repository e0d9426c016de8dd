package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect renders the statements whose syntax differs between MySQL and
// PostgreSQL.
type Dialect interface {
	Name() string
	// Placeholder returns the bind parameter for the n-th argument (1-based).
	Placeholder(n int) string
	// Upsert inserts rows and resolves key conflicts by adding the table's
	// Add columns and overwriting the remaining non-key columns.
	Upsert(t Table, rows int) string
	// InsertIgnore inserts rows and silently skips key conflicts.
	InsertIgnore(t Table, rows int) string
}

// Table describes a persisted aggregate table.
type Table struct {
	Name    string
	Columns []string
	// Key is the unique key used for conflict resolution.
	Key []string
	// Add lists columns incremented on conflict. Other non-key columns are
	// replaced with the new value unless listed in Keep.
	Add  []string
	Keep []string
	// TimeColumn is the bucket column purged by range deletes.
	TimeColumn string
}

func (t Table) isKey(col string) bool {
	return contains(t.Key, col)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (t Table) isAdd(col string) bool {
	return contains(t.Add, col)
}

// updated returns the columns written on conflict, in declaration order.
func (t Table) updated() []string {
	var cols []string
	for _, c := range t.Columns {
		if !t.isKey(c) && !contains(t.Keep, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case DriverMySQL, "":
		return MySQL{}, nil
	case DriverPostgres, "postgresql", "pgx":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// MySQL renders statements for MySQL and MariaDB.
type MySQL struct{}

func (MySQL) Name() string { return DriverMySQL }

func (MySQL) Placeholder(int) string { return "?" }

func (d MySQL) Upsert(t Table, rows int) string {
	cols := t.updated()
	if len(cols) == 0 {
		return d.InsertIgnore(t, rows)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	writeValues(&b, d, t, rows)
	b.WriteString(" ON DUPLICATE KEY UPDATE ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		if t.isAdd(c) {
			fmt.Fprintf(&b, "%s = %s + VALUES(%s)", c, c, c)
		} else {
			fmt.Fprintf(&b, "%s = VALUES(%s)", c, c)
		}
	}
	return b.String()
}

func (d MySQL) InsertIgnore(t Table, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT IGNORE INTO ")
	writeValues(&b, d, t, rows)
	return b.String()
}

// Postgres renders statements for PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string { return DriverPostgres }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (d Postgres) Upsert(t Table, rows int) string {
	cols := t.updated()
	if len(cols) == 0 {
		return d.InsertIgnore(t, rows)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	writeValues(&b, d, t, rows)
	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ", strings.Join(t.Key, ", "))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		if t.isAdd(c) {
			fmt.Fprintf(&b, "%s = %s.%s + EXCLUDED.%s", c, t.Name, c, c)
		} else {
			fmt.Fprintf(&b, "%s = EXCLUDED.%s", c, c)
		}
	}
	return b.String()
}

func (d Postgres) InsertIgnore(t Table, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	writeValues(&b, d, t, rows)
	b.WriteString(" ON CONFLICT DO NOTHING")
	return b.String()
}

// writeValues writes "table (cols) VALUES (...), (...)" for rows rows.
func writeValues(b *strings.Builder, d Dialect, t Table, rows int) {
	fmt.Fprintf(b, "%s (%s) VALUES ", t.Name, strings.Join(t.Columns, ", "))
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range t.Columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteString(")")
	}
}

// placeholders returns count bind parameters starting at from, comma
// separated.
func placeholders(d Dialect, from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.Placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}

// Subset returns a copy of t restricted to cols, in the order given. Key
// columns must be part of cols.
func (t Table) Subset(cols []string) Table {
	sub := t
	sub.Columns = append([]string(nil), cols...)
	return sub
}
