// Package forms decodes request bodies into validated, typed requests.
package forms

import (
	"sort"
	"strings"
)

// Error is a validation failure. Fields maps a field name to its reason.
type Error struct {
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// Invalid is a single-message validation error without field detail.
func Invalid(msg string) *Error {
	return &Error{Message: msg}
}

// checker accumulates field errors while a request is validated.
type checker struct {
	fields map[string]string
}

func (c *checker) fail(field, reason string) {
	if c.fields == nil {
		c.fields = map[string]string{}
	}
	if _, seen := c.fields[field]; !seen {
		c.fields[field] = reason
	}
}

func (c *checker) check(ok bool, field, reason string) bool {
	if !ok {
		c.fail(field, reason)
	}
	return ok
}

func (c *checker) failed(field string) bool {
	_, bad := c.fields[field]
	return bad
}

func (c *checker) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &Error{Message: "Invalid input", Fields: c.fields}
}
