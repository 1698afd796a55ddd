package executor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidResponse marks a reply body that is not a JSON object
var ErrInvalidResponse = errors.New("response is not a structured document")

// Response is a parsed key-value reply from the booking API
type Response struct {
	Body     []byte
	Fields   map[string]any
	Attempts int
}

// ParseResponse decodes body as a JSON object. Numbers are kept as json.Number.
func ParseResponse(body []byte) (*Response, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: null document", ErrInvalidResponse)
	}

	return &Response{Body: body, Fields: fields}, nil
}

// Status returns the top-level integer "status" field
func (r *Response) Status() (int, bool) {
	if r == nil {
		return 0, false
	}
	n, ok := r.Fields["status"].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(v), true
}

// Lookup walks nested objects by key
func (r *Response) Lookup(path ...string) (any, bool) {
	if r == nil {
		return nil, false
	}
	var cur any = r.Fields
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LookupString is Lookup for string leaves
func (r *Response) LookupString(path ...string) string {
	v, ok := r.Lookup(path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
