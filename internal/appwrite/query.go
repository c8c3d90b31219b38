package appwrite

import (
	"encoding/json"
	"fmt"
)

// Query is a filter predicate applied to document list calls.
// Queries serialize to the service's string form, e.g. equal("slug",["my-post"]).
type Query struct {
	method    string
	attribute string
	values    []any
}

// Equal matches documents whose attribute equals the given value.
func Equal(attribute string, value any) Query {
	return Query{method: "equal", attribute: attribute, values: []any{value}}
}

// String renders the query in the service's wire form.
func (q Query) String() string {
	attr, _ := json.Marshal(q.attribute)
	vals, _ := json.Marshal(q.values)
	return fmt.Sprintf("%s(%s,%s)", q.method, attr, vals)
}
