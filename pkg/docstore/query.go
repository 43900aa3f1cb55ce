package docstore

// Direction is the sort direction of a query.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Query describes a collection read. The zero value matches every document
// in natural order with no limit.
type Query struct {
	Filters   []Filter
	Sort      string
	Direction Direction
	Limit     int
}

// Where starts a query with a single equality filter.
func Where(field string, value any) Query {
	return Query{}.Where(field, value)
}

// All returns a query matching every document.
func All() Query {
	return Query{}
}

// Where returns a copy of q with an additional equality filter.
func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// OrderBy returns a copy of q sorted by field in the given direction.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.Sort = field
	q.Direction = dir
	return q
}

// Take returns a copy of q limited to n documents. Non-positive n removes the limit.
func (q Query) Take(n int) Query {
	if n < 0 {
		n = 0
	}
	q.Limit = n
	return q
}

// Fields is a partial document used for merge updates.
// Keys are top-level field names.
type Fields map[string]any
