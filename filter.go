package gputrc

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Filter is a set of rules applied to an individual [Zone], which is either
// allowed (pass) or rejected (fail). The zero filter allows everything.
type Filter struct {
	Contexts    []string       `json:"contexts,omitempty"`
	MinDuration *time.Duration `json:"min_duration,omitempty"`
	IsSentinel  bool           `json:"is_sentinel,omitempty"`
	IsMeasured  bool           `json:"is_measured,omitempty"`
	Query       string         `json:"query,omitempty"`

	regexp *regexp.Regexp
}

// Normalize must be called before the filter can be used.
func (f *Filter) Normalize() []error {
	var errs []error

	if f.Query != "" {
		re, err := regexp.Compile(f.Query)
		if err != nil {
			errs = append(errs, fmt.Errorf("query: %w", err))
			f.Query = ""
		} else {
			f.regexp = re
		}
	}

	return errs
}

// String returns an operator-readable representation of the filter.
func (f Filter) String() string {
	var elems []string

	if len(f.Contexts) > 0 {
		elems = append(elems, fmt.Sprintf("Contexts=%v", f.Contexts))
	}

	if f.MinDuration != nil {
		elems = append(elems, fmt.Sprintf("MinDuration=%s", f.MinDuration.String()))
	}

	if f.IsSentinel {
		elems = append(elems, "IsSentinel")
	}

	if f.IsMeasured {
		elems = append(elems, "IsMeasured")
	}

	if f.Query != "" {
		elems = append(elems, fmt.Sprintf("Query='%s'", f.Query))
	}

	if len(elems) <= 0 {
		return "(allow all)"
	}

	return strings.Join(elems, " ")
}

// Allow returns true if the zone satisfies every condition in the filter.
func (f *Filter) Allow(z Zone) bool {
	if len(f.Contexts) > 0 {
		var found bool
		for _, name := range f.Contexts {
			if name == z.ContextName {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.MinDuration != nil && z.Duration() < *f.MinDuration {
		return false
	}

	if f.IsSentinel && !z.Sentinel {
		return false
	}

	if f.IsMeasured && z.Sentinel {
		return false
	}

	if f.regexp != nil {
		if !f.regexp.MatchString(z.Name) &&
			!f.regexp.MatchString(z.Function) &&
			!f.regexp.MatchString(z.File) {
			return false
		}
	}

	return true
}
