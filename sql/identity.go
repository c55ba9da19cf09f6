package sql

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Configuration is the set of string settings handed to a provider next to
// an address. Two configurations are equal when they hold the same entries.
type Configuration map[string]string

// Clone returns an independent copy. A nil Configuration clones to an empty one.
func (c Configuration) Clone() Configuration {
	out := make(Configuration, len(c))
	maps.Copy(out, c)
	return out
}

// canonical encodes the configuration with keys in sorted order.
func (c Configuration) canonical() string {
	if len(c) == 0 {
		return ""
	}

	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(c)) {
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(c[k]))
		b.WriteByte(';')
	}
	return b.String()
}

// Identity keys the shared connection cache. It is comparable, so equal
// (address, configuration) pairs map to the same cache entry.
type Identity struct {
	address string
	config  string
}

// NewIdentity builds the identity of a connection request.
func NewIdentity(address string, cfg Configuration) Identity {
	return Identity{
		address: address,
		config:  cfg.canonical(),
	}
}

// Address returns the provider address, without the dbcleaner prefix.
func (id Identity) Address() string {
	return id.address
}

// Configuration decodes the configuration the identity was built from.
func (id Identity) Configuration() Configuration {
	cfg := Configuration{}
	rest := id.config
	for rest != "" {
		key, tail, ok := unquotePrefix(rest)
		if !ok || tail == "" || tail[0] != '=' {
			break
		}
		value, tail, ok := unquotePrefix(tail[1:])
		if !ok || tail == "" || tail[0] != ';' {
			break
		}
		cfg[key] = value
		rest = tail[1:]
	}
	return cfg
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	if id.config == "" {
		return id.address
	}
	return id.address + " " + id.config
}

// unquotePrefix reads one Go-quoted string from the start of s.
func unquotePrefix(s string) (string, string, bool) {
	quoted, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", "", false
	}
	value, err := strconv.Unquote(quoted)
	if err != nil {
		return "", "", false
	}
	return value, s[len(quoted):], true
}
