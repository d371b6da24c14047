package query

// Shape adds includes and an ordering to a query. It runs once, before predicates.
type Shape func(s *Shaping)

type Shaping struct {
	includes []include
	orders   []order
}

type include struct {
	path  string
	conds []interface{}
}

type order struct {
	field string
	desc  bool
}

// Include preloads a relation path, optionally restricted by gorm conditions.
func (s *Shaping) Include(path string, conds ...interface{}) *Shaping {
	s.includes = append(s.includes, include{path: path, conds: conds})
	return s
}

func (s *Shaping) OrderBy(field string) *Shaping {
	s.orders = append(s.orders, order{field: field})
	return s
}

func (s *Shaping) OrderByDesc(field string) *Shaping {
	s.orders = append(s.orders, order{field: field, desc: true})
	return s
}

