package database

import "strings"

type op int

const (
	opEq op = iota
	opContainsFold
)

// Clause is a single field match. Column names come from code, never from input.
type Clause struct {
	column string
	op     op
	value  string
}

// Eq matches rows whose column equals value exactly.
func Eq(column, value string) Clause {
	return Clause{column: column, op: opEq, value: value}
}

// ContainsFold matches rows whose column contains value, ignoring case.
// Both sides are lowered; on SQLite that relies on the Unicode lower()
// registered by this package.
func ContainsFold(column, value string) Clause {
	return Clause{column: column, op: opContainsFold, value: value}
}

// Predicate is a conjunction of clauses. The zero value matches every row.
type Predicate struct {
	clauses []Clause
}

// Where builds a predicate from clauses.
func Where(clauses ...Clause) Predicate {
	return Predicate{clauses: append([]Clause(nil), clauses...)}
}

// And returns a new predicate with the extra clauses appended.
func (p Predicate) And(clauses ...Clause) Predicate {
	out := make([]Clause, 0, len(p.clauses)+len(clauses))
	out = append(out, p.clauses...)
	out = append(out, clauses...)
	return Predicate{clauses: out}
}

// Len returns the number of clauses.
func (p Predicate) Len() int { return len(p.clauses) }

// SQL renders the predicate as a WHERE fragment with '?' placeholders
// (callers Rebind for their driver). An empty predicate renders as "".
func (p Predicate) SQL() (string, []any) {
	if len(p.clauses) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(p.clauses))
	args := make([]any, 0, len(p.clauses))
	for _, c := range p.clauses {
		switch c.op {
		case opContainsFold:
			parts = append(parts, "LOWER("+c.column+") LIKE ? ESCAPE '\\'")
			args = append(args, "%"+escapeLike(strings.ToLower(c.value))+"%")
		default:
			parts = append(parts, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
