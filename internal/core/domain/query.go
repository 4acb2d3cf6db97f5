package domain

import (
	"fmt"
	"strings"
)

// ClauseOp is the test a query clause applies to one field.
type ClauseOp string

// Clause operators.
const (
	OpEquals  ClauseOp = "eq"
	OpPrefix  ClauseOp = "prefix"
	OpExists  ClauseOp = "exists"
	OpMissing ClauseOp = "missing"
	OpIDs     ClauseOp = "ids"
)

// Clause tests a single field. Field may be a dotted path into nested objects.
type Clause struct {
	Field  string
	Op     ClauseOp
	Value  string
	Values []string
}

// Query selects documents as a conjunction of clauses.
// A query with no clauses matches every document.
//
// This is a selector, not a query language. The textual form is a
// whitespace separated list of:
//
//	field:value    field equals value (compared as text)
//	field:pre*     field starts with "pre"
//	field:*        field exists
//	-field:*       field is missing
//	_id:a,b,c      document id is one of the listed ids
//	*              match all
type Query struct {
	Clauses []Clause
}

// MatchAll returns a query that selects every document.
func MatchAll() Query {
	return Query{}
}

// IDsQuery returns a point query for the given ids.
func IDsQuery(ids ...string) Query {
	return Query{Clauses: []Clause{{Field: IDField, Op: OpIDs, Values: append([]string(nil), ids...)}}}
}

// ParseQuery parses the textual selector form.
func ParseQuery(s string) (Query, error) {
	var q Query
	for _, term := range strings.Fields(s) {
		if term == "*" {
			continue
		}

		negate := strings.HasPrefix(term, "-")
		term = strings.TrimPrefix(term, "-")

		field, value, ok := strings.Cut(term, ":")
		if !ok || field == "" || value == "" {
			return Query{}, fmt.Errorf("%w: %q is not field:value", ErrInvalidQuery, term)
		}

		switch {
		case negate && value == "*":
			q.Clauses = append(q.Clauses, Clause{Field: field, Op: OpMissing})
		case negate:
			return Query{}, fmt.Errorf("%w: negation is only supported as -field:*", ErrInvalidQuery)
		case field == IDField:
			q.Clauses = append(q.Clauses, Clause{Field: field, Op: OpIDs, Values: strings.Split(value, ",")})
		case value == "*":
			q.Clauses = append(q.Clauses, Clause{Field: field, Op: OpExists})
		case strings.HasSuffix(value, "*"):
			q.Clauses = append(q.Clauses, Clause{Field: field, Op: OpPrefix, Value: strings.TrimSuffix(value, "*")})
		default:
			q.Clauses = append(q.Clauses, Clause{Field: field, Op: OpEquals, Value: value})
		}
	}
	return q, nil
}

// IsMatchAll reports whether the query has no clauses.
func (q Query) IsMatchAll() bool {
	return len(q.Clauses) == 0
}

// String renders the query back to its textual form.
func (q Query) String() string {
	if q.IsMatchAll() {
		return "*"
	}
	parts := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		switch c.Op {
		case OpEquals:
			parts = append(parts, c.Field+":"+c.Value)
		case OpPrefix:
			parts = append(parts, c.Field+":"+c.Value+"*")
		case OpExists:
			parts = append(parts, c.Field+":*")
		case OpMissing:
			parts = append(parts, "-"+c.Field+":*")
		case OpIDs:
			parts = append(parts, c.Field+":"+strings.Join(c.Values, ","))
		}
	}
	return strings.Join(parts, " ")
}
