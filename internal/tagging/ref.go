package tagging

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Ref points at a tag either by id or by name. The zero Ref resolves to nothing.
type Ref struct {
	ID   uint64
	Name string
}

// ByID returns a Ref to the tag with the given id.
func ByID(id uint64) Ref { return Ref{ID: id} }

// ByName returns a Ref to the tag with the given name.
func ByName(name string) Ref { return Ref{Name: name} }

// NamePrefix forces ParseRef to read the rest of the token as a name, so tags
// with all-digit names such as "2024" stay reachable: "name:2024".
const NamePrefix = "name:"

// ErrEmptyName rejects a name reference without a name.
var ErrEmptyName = errors.New("tag name must not be empty")

// ParseRef turns command-line or query input into a Ref. All-digit tokens are ids
// unless prefixed with NamePrefix. An empty token reads as id 0, which is never
// allocated, so it resolves to nothing.
func ParseRef(s string) Ref {
	if name, ok := strings.CutPrefix(s, NamePrefix); ok && name != "" {
		return ByName(name)
	}
	if id, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ByID(id)
	}
	return ByName(s)
}

// ParseRefs applies ParseRef to every token.
func ParseRefs(tokens []string) []Ref {
	refs := make([]Ref, 0, len(tokens))
	for _, t := range tokens {
		refs = append(refs, ParseRef(t))
	}
	return refs
}

// IsID reports whether the ref addresses a tag by id.
func (r Ref) IsID() bool { return r.Name == "" }

func (r Ref) String() string {
	if r.IsID() {
		return strconv.FormatUint(r.ID, 10)
	}
	return r.Name
}

// MarshalJSON encodes id refs as numbers and name refs as strings.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.IsID() {
		return json.Marshal(r.ID)
	}
	return json.Marshal(r.Name)
}

// UnmarshalJSON accepts a JSON number or string.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var id uint64
	if err := json.Unmarshal(data, &id); err == nil {
		*r = ByID(id)
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return errors.Newf("tag reference must be a number or a string: %s", data)
	}
	if name == "" {
		return ErrEmptyName
	}
	*r = ByName(name)
	return nil
}
