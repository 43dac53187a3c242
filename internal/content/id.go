package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a content store document id. The store uses numeric ids for most
// collections, but callers hand them over as strings or numbers, and
// relationship fields come back either bare or as a populated document.
type ID string

// ParseID is the single place where caller-supplied ids are canonicalized.
// Surrounding whitespace is dropped and a string that parses as a base-10
// integer becomes that integer's canonical form ("007" -> "7"), so it compares
// equal to the numeric id the store returns.
func ParseID(raw string) ID {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ID(strconv.FormatInt(n, 10))
	}
	return ID(s)
}

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return id == "" }

// Numeric reports the integer value of a numeric id.
func (id ID) Numeric() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, ok := id.Numeric(); ok {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ParseID(s)
		return nil
	case '{':
		// populated relationship
		var doc struct {
			ID ID `json:"id"`
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return err
		}
		*id = doc.ID
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("content: id must be string, number or document: %w", err)
		}
		*id = ParseID(n.String())
		return nil
	}
}
