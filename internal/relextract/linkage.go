// Package relextract turns the relationships object of a create/update
// document into foreign-key column assignments and many-to-many membership
// updates.
package relextract

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"

	"resourcekit/internal/resterr"
)

// Identifier is a resource identifier object: {"type": ..., "id": ...}.
type Identifier struct {
	Type string
	ID   string
}

// Linkage is the decoded "data" member of one relationship. The zero value
// means the member was absent, which leaves the relationship untouched.
type Linkage struct {
	Present bool
	Null    bool
	Many    bool
	One     Identifier
	Items   []Identifier
}

// Relationships maps relationship names to their linkage.
type Relationships map[string]Linkage

// UnmarshalJSON decodes a relationships object. Decode failures are
// validation errors naming the offending relationship.
func (r *Relationships) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return resterr.Validationf("relationships must be an object").WithField("relationships").Wrap(err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Relationships, len(raw))
	for _, name := range names {
		var l Linkage
		if err := l.UnmarshalJSON(raw[name]); err != nil {
			var rerr *resterr.Error
			if !errors.As(err, &rerr) {
				rerr = resterr.Validationf("invalid relationship %q", name).Wrap(err)
			}
			return rerr.WithRelationship(name).WithField("relationships." + name)
		}
		out[name] = l
	}
	*r = out
	return nil
}

// One builds a to-one linkage.
func One(typ, id string) Linkage {
	return Linkage{Present: true, One: Identifier{Type: typ, ID: id}}
}

// Null builds a linkage clearing a to-one relationship.
func Null() Linkage {
	return Linkage{Present: true, Null: true}
}

// Many builds a to-many linkage; no identifiers clears membership.
func Many(ids ...Identifier) Linkage {
	return Linkage{Present: true, Many: true, Items: append([]Identifier{}, ids...)}
}

// UnmarshalJSON decodes {"data": null | {...} | [...]}. A relationship
// object without "data" decodes as absent.
func (l *Linkage) UnmarshalJSON(b []byte) error {
	*l = Linkage{}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return resterr.Validationf("relationship must be an object").Wrap(err)
	}
	data, ok := obj["data"]
	if !ok {
		return nil
	}
	l.Present = true

	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		l.Null = true
	case len(data) > 0 && data[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return resterr.Validationf("invalid relationship data").Wrap(err)
		}
		l.Many = true
		l.Items = make([]Identifier, 0, len(raw))
		for _, item := range raw {
			id, err := decodeIdentifier(item)
			if err != nil {
				return err
			}
			l.Items = append(l.Items, id)
		}
	default:
		id, err := decodeIdentifier(data)
		if err != nil {
			return err
		}
		l.One = id
	}
	return nil
}

// MarshalJSON renders the linkage as a relationship object.
func (l Linkage) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	var data interface{}
	switch {
	case !l.Present:
		return []byte("{}"), nil
	case l.Null:
		data = nil
	case l.Many:
		items := make([]wire, len(l.Items))
		for i, item := range l.Items {
			items[i] = wire(item)
		}
		data = items
	default:
		data = wire(l.One)
	}
	return json.Marshal(map[string]interface{}{"data": data})
}

func decodeIdentifier(raw json.RawMessage) (Identifier, error) {
	var obj struct {
		Type string          `json:"type"`
		ID   json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Identifier{}, resterr.Validationf("invalid resource identifier").Wrap(err)
	}
	id, err := decodeID(obj.ID)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Type: obj.Type, ID: id}, nil
}

// decodeID accepts string or numeric ids; numbers keep their literal text.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", resterr.Validationf("invalid resource id").Wrap(err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", resterr.Validationf("resource id must be a string or number: %s", raw)
	}
	return n.String(), nil
}
