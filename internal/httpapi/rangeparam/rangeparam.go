// Package rangeparam parses the two query conventions collection list
// endpoints share: the Range request header (items=<first>-<last>) and the
// order=[±field,...] sort specification.
package rangeparam

import (
	"strconv"
	"strings"

	"varda/internal/verr"
)

// Default page size used when no Range header is present.
const DefaultLimit = 50

// Window is a zero-based, inclusive [First, Last] item range.
type Window struct {
	First, Last int
}

// Len returns the number of items the window spans.
func (w Window) Len() int { return w.Last - w.First + 1 }

// ParseRange parses a "Range: items=<first>-<last>" header value. An empty
// header yields the default window [0, DefaultLimit-1].
func ParseRange(header string) (Window, error) {
	if header == "" {
		return Window{First: 0, Last: DefaultLimit - 1}, nil
	}
	const prefix = "items="
	if !strings.HasPrefix(header, prefix) {
		return Window{}, verr.New(verr.UnsatisfiableRange, "rangeparam: malformed Range header %q", header)
	}
	spec := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return Window{}, verr.New(verr.UnsatisfiableRange, "rangeparam: malformed Range header %q", header)
	}
	first, err := strconv.Atoi(parts[0])
	if err != nil || first < 0 {
		return Window{}, verr.New(verr.UnsatisfiableRange, "rangeparam: invalid range start %q", parts[0])
	}
	last, err := strconv.Atoi(parts[1])
	if err != nil || last < first {
		return Window{}, verr.New(verr.UnsatisfiableRange, "rangeparam: invalid range end %q", parts[1])
	}
	return Window{First: first, Last: last}, nil
}

// ContentRange formats the Content-Range response header value for a
// window actually served out of total items.
func ContentRange(w Window, total int) string {
	last := w.Last
	if last >= total {
		last = total - 1
	}
	if last < w.First {
		return "items */" + strconv.Itoa(total)
	}
	return "items " + strconv.Itoa(w.First) + "-" + strconv.Itoa(last) + "/" + strconv.Itoa(total)
}

// SortField is one term of an order= specification: a field name plus
// direction (ascending unless Desc is set via a leading '-').
type SortField struct {
	Name string
	Desc bool
}

// ParseOrder parses "order=[±field,...]", e.g. "-created_at,name". An empty
// spec yields no fields, leaving the caller's default order in effect.
func ParseOrder(spec string) []SortField {
	spec = strings.Trim(spec, "[]")
	if spec == "" {
		return nil
	}
	var out []SortField
	for _, term := range strings.Split(spec, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		f := SortField{Name: term}
		switch term[0] {
		case '-':
			f.Desc = true
			f.Name = term[1:]
		case '+':
			f.Name = term[1:]
		}
		out = append(out, f)
	}
	return out
}
