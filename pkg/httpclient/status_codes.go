package httpclient

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StatusCodeSet holds a set of HTTP status codes, supporting individual
// codes and inclusive ranges. Used to declare which statuses count as
// success for circuit breaker accounting.
type StatusCodeSet struct {
	codes map[int]struct{}
	spec  string
}

// ParseStatusCodes parses a spec like "200-299,404" into a set.
// Elements are comma-separated; each is a single code or "lo-hi" range.
func ParseStatusCodes(spec string) (*StatusCodeSet, error) {
	set := &StatusCodeSet{codes: make(map[int]struct{}), spec: spec}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := parseCode(lo)
			if err != nil {
				return nil, err
			}
			end, err := parseCode(hi)
			if err != nil {
				return nil, err
			}
			if start > end {
				return nil, fmt.Errorf("httpclient: invalid status range %q", part)
			}
			for code := start; code <= end; code++ {
				set.codes[code] = struct{}{}
			}
			continue
		}

		code, err := parseCode(part)
		if err != nil {
			return nil, err
		}
		set.codes[code] = struct{}{}
	}

	return set, nil
}

// MustParseStatusCodes is like ParseStatusCodes but panics on error.
// Use only for literal specs.
func MustParseStatusCodes(spec string) *StatusCodeSet {
	set, err := ParseStatusCodes(spec)
	if err != nil {
		panic(err)
	}
	return set
}

// StatusCodesFromSlice builds a set from explicit codes.
func StatusCodesFromSlice(codes []int) *StatusCodeSet {
	set := &StatusCodeSet{codes: make(map[int]struct{}, len(codes))}
	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		set.codes[code] = struct{}{}
		parts = append(parts, strconv.Itoa(code))
	}
	set.spec = strings.Join(parts, ",")
	return set
}

func parseCode(s string) (int, error) {
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("httpclient: invalid status code %q", s)
	}
	if code < 100 || code > 599 {
		return 0, fmt.Errorf("httpclient: status code %d out of range", code)
	}
	return code, nil
}

// Contains reports whether the set includes code. A nil set contains
// nothing.
func (s *StatusCodeSet) Contains(code int) bool {
	if s == nil {
		return false
	}
	_, ok := s.codes[code]
	return ok
}

// IsEmpty reports whether the set is nil or has no codes.
func (s *StatusCodeSet) IsEmpty() bool {
	return s == nil || len(s.codes) == 0
}

// Len returns the number of codes in the set.
func (s *StatusCodeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.codes)
}

// String returns the original spec when available, else a sorted code list.
func (s *StatusCodeSet) String() string {
	if s == nil {
		return ""
	}
	if s.spec != "" {
		return s.spec
	}
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = strconv.Itoa(code)
	}
	return strings.Join(parts, ",")
}
