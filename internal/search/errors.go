package search

import (
	"fmt"
	"strconv"
	"strings"
)

// InvalidQueryError reports malformed query or filter input. It is raised per
// request and has no side effects.
type InvalidQueryError struct {
	Param  string
	Value  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("search: invalid %s %q: %s", e.Param, e.Value, e.Reason)
}

// ParseSpeaker parses a speaker filter. An empty string means no filter and
// returns nil.
func ParseSpeaker(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, &InvalidQueryError{Param: "speaker", Value: s, Reason: "not an integer"}
	}
	if n < 0 {
		return nil, &InvalidQueryError{Param: "speaker", Value: s, Reason: "must not be negative"}
	}
	return &n, nil
}
