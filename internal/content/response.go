package content

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Response is a learner's answer to one question: a single option id, or a
// list of option ids for multi-select. The zero value means "no answer".
type Response struct {
	values []string
	multi  bool
}

func SingleResponse(optionID string) Response {
	return Response{values: []string{optionID}}
}

func MultiResponse(optionIDs ...string) Response {
	vs := make([]string, len(optionIDs))
	copy(vs, optionIDs)
	return Response{values: vs, multi: true}
}

func (r Response) IsZero() bool { return !r.multi && len(r.values) == 0 }

// IsMulti is true when the learner sent a list, even a one-element one.
func (r Response) IsMulti() bool { return r.multi }

// Single returns the lone value of a single response.
func (r Response) Single() (string, bool) {
	if r.multi || len(r.values) != 1 {
		return "", false
	}
	return r.values[0], true
}

// Values returns a copy of every option id in the response.
func (r Response) Values() []string {
	out := make([]string, len(r.values))
	copy(out, r.values)
	return out
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.multi:
		return json.Marshal(r.values)
	case len(r.values) == 1:
		return json.Marshal(r.values[0])
	default:
		return []byte("null"), nil
	}
}

func (r *Response) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = Response{}
		return nil
	}
	if b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		vs := make([]string, 0, len(raw))
		for _, e := range raw {
			s, err := scalarString(e)
			if err != nil {
				return err
			}
			vs = append(vs, s)
		}
		*r = Response{values: vs, multi: true}
		return nil
	}
	s, err := scalarString(b)
	if err != nil {
		return err
	}
	*r = SingleResponse(s)
	return nil
}

// scalarString accepts a JSON string or number. Option ids are strings but
// some clients send numeric row ids.
func scalarString(b json.RawMessage) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		err := json.Unmarshal(b, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", fmt.Errorf("content: response value must be string or number: %w", err)
	}
	return n.String(), nil
}

// Responses maps question id to the learner's answer.
type Responses map[ID]Response
