package policy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Form field names bound by the policy conditions. The browser must submit
// a form field with each of these names carrying the exact value.
const (
	FieldBucket        = "bucket"
	FieldKey           = "key"
	FieldACL           = "acl"
	FieldCredential    = "x-amz-credential"
	FieldSecurityToken = "x-amz-security-token"
	FieldAlgorithm     = "x-amz-algorithm"
	FieldDate          = "x-amz-date"
)

// ExpirationFormat is the ISO-8601 form S3 expects for the expiration field
const ExpirationFormat = "2006-01-02T15:04:05.000Z"

const (
	opEq          = "eq"
	opStartsWith  = "starts-with"
	opLengthRange = "content-length-range"
)

// Condition is one entry of the policy's conditions list.
// The set of implementations is closed: ExactMatch, PrefixMatch and SizeRange.
type Condition interface {
	json.Marshaler
	condition()
}

// ExactMatch requires the form field to equal Value
type ExactMatch struct {
	Field string
	Value string
}

func (ExactMatch) condition() {}

// MarshalJSON encodes the condition as ["eq", "$field", "value"]
func (c ExactMatch) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{opEq, "$" + c.Field, c.Value})
}

// PrefixMatch requires the form field to start with Prefix
type PrefixMatch struct {
	Field  string
	Prefix string
}

func (PrefixMatch) condition() {}

// MarshalJSON encodes the condition as ["starts-with", "$field", "prefix"]
func (c PrefixMatch) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{opStartsWith, "$" + c.Field, c.Prefix})
}

// SizeRange bounds the uploaded content length in bytes, inclusive
type SizeRange struct {
	Min int64
	Max int64
}

func (SizeRange) condition() {}

// MarshalJSON encodes the condition as ["content-length-range", min, max]
func (c SizeRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{opLengthRange, c.Min, c.Max})
}

// Document is a POST policy document
type Document struct {
	Expiration time.Time
	Conditions []Condition
}

type wireDocument struct {
	Expiration string      `json:"expiration"`
	Conditions []Condition `json:"conditions"`
}

// Marshal returns the canonical JSON bytes of the document. The output is
// compact and its field order is fixed, so equal documents yield equal bytes.
func (d *Document) Marshal() ([]byte, error) {
	conditions := d.Conditions
	if conditions == nil {
		conditions = []Condition{}
	}
	data, err := json.Marshal(wireDocument{
		Expiration: d.Expiration.UTC().Format(ExpirationFormat),
		Conditions: conditions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return data, nil
}

// MarshalJSON implements json.Marshaler
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Marshal()
}

// Exact returns the value of the first ExactMatch condition for field
func (d *Document) Exact(field string) (string, bool) {
	for _, c := range d.Conditions {
		if m, ok := c.(ExactMatch); ok && m.Field == field {
			return m.Value, true
		}
	}
	return "", false
}

// Decode parses a base64-encoded policy document as submitted in the
// "policy" form field. Exact matches are accepted in both the
// ["eq","$f","v"] and {"f":"v"} forms.
func Decode(base64Policy string) (*Document, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Parse(raw)
}

// Parse parses raw policy JSON
func Parse(data []byte) (*Document, error) {
	var wire struct {
		Expiration string            `json:"expiration"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	expiration, err := time.Parse(ExpirationFormat, wire.Expiration)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expiration %q", ErrDecode, wire.Expiration)
	}

	doc := &Document{Expiration: expiration}
	for i, rawCond := range wire.Conditions {
		cond, err := parseCondition(rawCond)
		if err != nil {
			return nil, fmt.Errorf("%w: condition %d: %v", ErrDecode, i, err)
		}
		doc.Conditions = append(doc.Conditions, cond)
	}
	return doc, nil
}

func parseCondition(raw json.RawMessage) (Condition, error) {
	var object map[string]string
	if err := json.Unmarshal(raw, &object); err == nil {
		if len(object) != 1 {
			return nil, fmt.Errorf("object condition must have exactly one field")
		}
		for field, value := range object {
			return ExactMatch{Field: field, Value: value}, nil
		}
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	if len(list) != 3 {
		return nil, fmt.Errorf("array condition must have 3 elements, got %d", len(list))
	}

	var op string
	if err := json.Unmarshal(list[0], &op); err != nil {
		return nil, err
	}

	switch op {
	case opEq, opStartsWith:
		var field, value string
		if err := json.Unmarshal(list[1], &field); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(list[2], &value); err != nil {
			return nil, err
		}
		field = strings.TrimPrefix(field, "$")
		if op == opEq {
			return ExactMatch{Field: field, Value: value}, nil
		}
		return PrefixMatch{Field: field, Prefix: value}, nil
	case opLengthRange:
		var min, max int64
		if err := json.Unmarshal(list[1], &min); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(list[2], &max); err != nil {
			return nil, err
		}
		return SizeRange{Min: min, Max: max}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}
