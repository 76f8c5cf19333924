package cache

import (
	"net/url"
	"strconv"
)

// Key identifies a cacheable unit: a resource kind plus its parameters.
// Two keys with the same kind and parameters always render to the same
// String(), whatever order the parameters were supplied in.
type Key struct {
	Kind   string
	Params url.Values
}

// NewKey builds a key from alternating name/value pairs. A trailing name
// without a value is ignored.
func NewKey(kind string, kv ...string) Key {
	k := Key{Kind: kind}
	for i := 0; i+1 < len(kv); i += 2 {
		if k.Params == nil {
			k.Params = url.Values{}
		}
		k.Params.Set(kv[i], kv[i+1])
	}
	return k
}

// String renders the normalized form "kind" or "kind?a=1&b=2".
// url.Values.Encode sorts by parameter name.
func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Kind
	}
	return k.Kind + "?" + k.Params.Encode()
}

// Param returns the value of a parameter, or "" when absent.
func (k Key) Param(name string) string {
	return k.Params.Get(name)
}

// IntParam returns a parameter parsed as an int, or 0.
func (k Key) IntParam(name string) int {
	n, _ := strconv.Atoi(k.Params.Get(name))
	return n
}

func (k Key) clone() Key {
	if k.Params == nil {
		return k
	}
	params := make(url.Values, len(k.Params))
	for name, vs := range k.Params {
		params[name] = append([]string(nil), vs...)
	}
	return Key{Kind: k.Kind, Params: params}
}

// Predicate selects keys, e.g. for invalidation.
type Predicate func(Key) bool

// MatchKind selects every key of the given kind.
func MatchKind(kind string) Predicate {
	return func(k Key) bool { return k.Kind == kind }
}

// MatchKey selects exactly one key.
func MatchKey(key Key) Predicate {
	s := key.String()
	return func(k Key) bool { return k.String() == s }
}

// MatchParam selects keys of a kind whose parameter has one of the values.
func MatchParam(kind, name string, values ...string) Predicate {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(k Key) bool {
		if k.Kind != kind {
			return false
		}
		_, ok := set[k.Param(name)]
		return ok
	}
}

// Any selects keys matched by at least one of the predicates.
func Any(preds ...Predicate) Predicate {
	return func(k Key) bool {
		for _, p := range preds {
			if p(k) {
				return true
			}
		}
		return false
	}
}
