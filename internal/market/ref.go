// Package market holds the marketplace data model shared by the API client,
// the inbox and the favorites cache: messages, user and product references,
// derived conversations and the error taxonomy.
package market

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RefID normalizes an entity reference to its identifier.
//
// The API sends sender, receiver, product and reviewer either as a bare
// identifier or as an embedded object. The identifier is "_id" if present,
// else "id", else the value itself. Null, empty and unrecognized values
// yield "".
func RefID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{':
		var obj struct {
			MongoID json.RawMessage `json:"_id"`
			ID      json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		if id := scalarID(obj.MongoID); id != "" {
			return id
		}
		return scalarID(obj.ID)
	default:
		return scalarID(raw)
	}
}

// scalarID accepts strings and numbers; nested objects are not unwrapped twice.
func scalarID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

// UserRef is a user reference with whatever display fields came with it.
type UserRef struct {
	ID     string `json:"_id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// UnmarshalJSON accepts a bare identifier or an embedded user object.
func (u *UserRef) UnmarshalJSON(data []byte) error {
	*u = UserRef{ID: RefID(data)}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var fields struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	// Display fields are best-effort; a mistyped one must not drop the message.
	_ = json.Unmarshal(data, &fields)
	u.Name = fields.Name
	u.Avatar = fields.Avatar
	return nil
}

// IsZero reports whether the reference carries no identifier.
func (u UserRef) IsZero() bool { return u.ID == "" }

// ProductRef is a product snapshot: the identifier plus display fields.
// Favorites persist these snapshots independently of the live catalog.
type ProductRef struct {
	ID    string  `json:"_id"`
	Name  string  `json:"name,omitempty"`
	Image string  `json:"image,omitempty"`
	Price float64 `json:"price,omitempty"`
}

// UnmarshalJSON accepts a bare identifier or an embedded product object.
func (p *ProductRef) UnmarshalJSON(data []byte) error {
	*p = ProductRef{ID: RefID(data)}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var fields struct {
		Name  string  `json:"name"`
		Image string  `json:"image"`
		Price float64 `json:"price"`
	}
	_ = json.Unmarshal(data, &fields)
	p.Name = fields.Name
	p.Image = fields.Image
	p.Price = fields.Price
	return nil
}

// IsZero reports whether the reference carries no identifier.
func (p ProductRef) IsZero() bool { return p.ID == "" }
