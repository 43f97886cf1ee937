package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	// SignatureKey is the parameter carrying the request signature
	SignatureKey = "signature"
	// MethodKey is the parameter naming the requested operation
	MethodKey = "method"
	// TimeKey is the parameter carrying the Unix time the request was signed
	TimeKey = "time"
)

// Params is a flat set of request parameters
type Params map[string]string

// Sign computes the request signature for params using secret.
// Any "signature" entry in params is ignored.
func Sign(params Params, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, key := range params.SortedKeys() {
		if key == SignatureKey {
			continue
		}
		mac.Write([]byte(key))
		mac.Write([]byte(params[key]))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the signature of params under secret
func Verify(params Params, signature, secret string) bool {
	expected := Sign(params.Without(SignatureKey), secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SortedKeys returns the parameter names in ascending byte order
func (p Params) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of p
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Without returns a copy of p with the given keys removed
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Has reports whether name is present as a plain value or as a nested group
// with at least one non-empty member.
func (p Params) Has(name string) bool {
	if p[name] != "" {
		return true
	}
	prefix := name + "["
	for k, v := range p {
		if strings.HasPrefix(k, prefix) && v != "" {
			return true
		}
	}
	return false
}

// Merge copies every entry of other into p
func (p Params) Merge(other Params) {
	for k, v := range other {
		p[k] = v
	}
}

// List reassembles a list flattened under name (name[0], name[1], ...).
// Items are returned in index order.
func (p Params) List(name string) []string {
	type item struct {
		index int
		key   string
		value string
	}
	var items []item
	for key, value := range p {
		sub, ok := subKey(name, key)
		if !ok {
			continue
		}
		idx, err := strconv.Atoi(sub)
		if err != nil {
			idx = -1
		}
		items = append(items, item{index: idx, key: sub, value: value})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].index != items[j].index {
			return items[i].index < items[j].index
		}
		return items[i].key < items[j].key
	})

	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.value)
	}
	return out
}

// Map reassembles a map flattened under name (name[key]=value)
func (p Params) Map(name string) map[string]string {
	out := make(map[string]string)
	for key, value := range p {
		if sub, ok := subKey(name, key); ok {
			out[sub] = value
		}
	}
	return out
}

// Values converts p into url.Values for form encoding
func (p Params) Values() url.Values {
	values := make(url.Values, len(p))
	for k, v := range p {
		values.Set(k, v)
	}
	return values
}

// FromValues builds Params from decoded form values, keeping the first value
// of every key.
func FromValues(values url.Values) Params {
	p := make(Params, len(values))
	for k, v := range values {
		if len(v) > 0 {
			p[k] = v[0]
		}
	}
	return p
}

// Flatten converts a parameter value into its flat form representation.
// Supported values are string, []string, map[string]string and fmt.Stringer;
// other scalars are rendered with fmt.
func Flatten(name string, value interface{}) Params {
	out := make(Params)
	switch v := value.(type) {
	case nil:
	case string:
		out[name] = v
	case []string:
		for i, item := range v {
			out[fmt.Sprintf("%s[%d]", name, i)] = item
		}
	case map[string]string:
		for k, item := range v {
			out[name+"["+k+"]"] = item
		}
	case fmt.Stringer:
		out[name] = v.String()
	default:
		out[name] = fmt.Sprint(v)
	}
	return out
}

// subKey extracts "k" from "name[k]"
func subKey(name, key string) (string, bool) {
	if !strings.HasPrefix(key, name+"[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	return key[len(name)+1 : len(key)-1], true
}
