package filter

import (
	sq "github.com/Masterminds/squirrel"
)

// Group collects the predicates contributed by one filter key. Where extends
// the current AND run; OrWhere starts a new run. The rendered group is always
// parenthesized so OR terms never leak into sibling filters.
type Group struct {
	query   *Query
	qualify bool
	runs    [][]sq.Sqlizer
}

func newGroup(q *Query, qualify bool) *Group {
	return &Group{query: q, qualify: qualify}
}

// Column renders a column of the main table, qualified when the phase requires it.
func (g *Group) Column(field string) string {
	if g.qualify {
		return g.query.Column(g.query.Table(), field)
	}
	return g.query.Quote(field)
}

// Where ANDs cond into the current run.
func (g *Group) Where(cond sq.Sqlizer) *Group {
	if cond == nil {
		return g
	}
	if len(g.runs) == 0 {
		g.runs = append(g.runs, nil)
	}
	last := len(g.runs) - 1
	g.runs[last] = append(g.runs[last], cond)
	return g
}

// OrWhere starts a new run ORed with the previous ones.
func (g *Group) OrWhere(cond sq.Sqlizer) *Group {
	if cond == nil {
		return g
	}
	g.runs = append(g.runs, []sq.Sqlizer{cond})
	return g
}

// WhereOp ANDs column op value.
func (g *Group) WhereOp(column string, op Operator, value interface{}) error {
	cond, err := op.Condition(column, value)
	if err != nil {
		return err
	}
	g.Where(cond)
	return nil
}

// WhereIn ANDs column IN (values).
func (g *Group) WhereIn(column string, values []interface{}) *Group {
	return g.Where(sq.Eq{column: values})
}

// WhereBetween ANDs column BETWEEN lo AND hi.
func (g *Group) WhereBetween(column string, lo, hi interface{}) *Group {
	return g.Where(sq.Expr(column+" BETWEEN ? AND ?", lo, hi))
}

// WhereLike ANDs column LIKE pattern; the pattern is used verbatim.
func (g *Group) WhereLike(column, pattern string) *Group {
	return g.Where(sq.Like{column: pattern})
}

// OrWhereLike ORs column LIKE pattern.
func (g *Group) OrWhereLike(column, pattern string) *Group {
	return g.OrWhere(sq.Like{column: pattern})
}

// Empty reports whether nothing was added.
func (g *Group) Empty() bool {
	return len(g.runs) == 0
}

// Sqlizer renders the group as a single parenthesized predicate.
func (g *Group) Sqlizer() sq.Sqlizer {
	if len(g.runs) == 1 {
		return sq.And(g.runs[0])
	}
	ors := make(sq.Or, 0, len(g.runs))
	for _, run := range g.runs {
		if len(run) == 1 {
			ors = append(ors, run[0])
			continue
		}
		ors = append(ors, sq.And(run))
	}
	return ors
}
