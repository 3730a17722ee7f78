package query

import (
	"net/url"
	"strings"
)

// Filter is one scalar scoping field of a cache key.
type Filter struct {
	Name  string
	Value string
}

func F(name, value string) Filter {
	return Filter{Name: name, Value: value}
}

// Key identifies one cache slot: a resource plus its ordered filters.
// Identity is structural; callers build filters in a fixed order so equal
// queries render the same key.
type Key struct {
	Resource string
	Filters  []Filter
}

func NewKey(resource string, filters ...Filter) Key {
	return Key{Resource: resource, Filters: filters}
}

// String renders the canonical form "resource?name=value&name=value".
// Key families are string prefixes of this form.
func (k Key) String() string {
	if len(k.Filters) == 0 {
		return k.Resource
	}
	var b strings.Builder
	b.WriteString(k.Resource)
	b.WriteByte('?')
	for i, f := range k.Filters {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}
