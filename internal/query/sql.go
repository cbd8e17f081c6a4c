package query

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// clauseBuilder accumulates WHERE fragments and their positional args,
// the same string-concatenation idiom internal/repository/media_queries.go
// uses: each append both grows the SQL text and appends to the arg
// slice in lockstep, so the two can never drift out of sync.
type clauseBuilder struct {
	wheres []string
	joins  []string
	args   []interface{}
	next   int
}

func newClauseBuilder(paramStart int) *clauseBuilder {
	return &clauseBuilder{next: paramStart}
}

func (b *clauseBuilder) param(v interface{}) string {
	placeholder := fmt.Sprintf("$%d", b.next)
	b.args = append(b.args, v)
	b.next++
	return placeholder
}

func (b *clauseBuilder) where(clause string) {
	b.wheres = append(b.wheres, clause)
}

func (b *clauseBuilder) join(clause string) {
	b.joins = append(b.joins, clause)
}

func (b *clauseBuilder) whereSQL() string {
	if len(b.wheres) == 0 {
		return ""
	}
	return " AND " + strings.Join(b.wheres, " AND ")
}

func (b *clauseBuilder) joinSQL() string {
	if len(b.joins) == 0 {
		return ""
	}
	return " " + strings.Join(b.joins, " ")
}

// applyYearRating appends the year_range/rating_range filters common to
// both movies and series.
func (b *clauseBuilder) applyYearRating(f Filters, yearCol, ratingCol string) {
	if f.YearMin != nil {
		b.where(fmt.Sprintf("%s >= %s", yearCol, b.param(*f.YearMin)))
	}
	if f.YearMax != nil {
		b.where(fmt.Sprintf("%s <= %s", yearCol, b.param(*f.YearMax)))
	}
	if f.RatingMin != nil {
		b.where(fmt.Sprintf("%s >= %s", ratingCol, b.param(*f.RatingMin)))
	}
	if f.RatingMax != nil {
		b.where(fmt.Sprintf("%s <= %s", ratingCol, b.param(*f.RatingMax)))
	}
}

// applyLibraryIDs appends a library_id IN (...) clause built from
// positional params rather than pq.Array, since LibraryID is a
// uuid-backed newtype rather than one of the primitive kinds pq.Array
// supports by reflection.
func (b *clauseBuilder) applyLibraryIDs(col string, ids []interface{}) {
	if len(ids) == 0 {
		return
	}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = b.param(id)
	}
	b.where(fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ",")))
}

// applyGenres appends a genre-overlap clause against a text[] column.
func (b *clauseBuilder) applyGenres(col string, genres []string) {
	if len(genres) == 0 {
		return
	}
	b.where(fmt.Sprintf("%s && %s", col, b.param(pq.Array(genres))))
}

// searchPredicate returns one ILIKE/similarity predicate for a single
// column plus the argument to bind for it.
func searchPredicate(mode SearchMode, col string, placeholder string) string {
	if mode == SearchModeFuzzy {
		return fmt.Sprintf("similarity(%s, %s) > 0.2", col, placeholder)
	}
	return fmt.Sprintf("%s ILIKE %s", col, placeholder)
}

func searchArg(mode SearchMode, term string) interface{} {
	if mode == SearchModeFuzzy {
		return term
	}
	return "%" + term + "%"
}

// applyTitleOverviewSearch appends the Title/Overview/All portion of a
// Search against the given columns (overviewCol may be "" when the
// table has none, e.g. seasons).
func (b *clauseBuilder) applyTitleOverviewSearch(s Search, titleCol, overviewCol string) []string {
	var ors []string
	if s.hasField(SearchFieldTitle) {
		ph := b.param(searchArg(s.Mode, s.Term))
		ors = append(ors, searchPredicate(s.Mode, titleCol, ph))
	}
	if overviewCol != "" && s.hasField(SearchFieldOverview) {
		ph := b.param(searchArg(s.Mode, s.Term))
		ors = append(ors, searchPredicate(s.Mode, overviewCol, ph))
	}
	return ors
}

func orderDirection(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

func nullsLast(col, dir string) string {
	return fmt.Sprintf("%s %s NULLS LAST", col, dir)
}
