package gputrcweb

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gputrc/gputrc"
)

const maxRequestBodySizeBytes = 1 * 1024 * 1024 // 1MB

func parseFilter(r *http.Request) gputrc.Filter {
	urlquery := r.URL.Query()
	return gputrc.Filter{
		Contexts:    urlquery["context"],
		MinDuration: parseDefault(urlquery.Get("min"), parseDurationPointer, nil),
		IsSentinel:  urlquery.Has("sentinel"),
		IsMeasured:  urlquery.Has("measured"),
		Query:       urlquery.Get("q"),
	}
}

func parseDefault[T any](s string, parse func(string) (T, error), def T) T {
	if v, err := parse(s); err == nil {
		return v
	}
	return def
}

func parseRange[T int](s string, parse func(string) (T, error), min, def, max T) T {
	v, err := parse(s)
	switch {
	case err != nil:
		return def
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}

func parseDurationPointer(s string) (*time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func requestExplicitlyAccepts(r *http.Request, acceptable ...string) bool {
	for _, a := range r.Header.Values("accept") {
		for _, m := range strings.Split(a, ",") {
			mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(m))
			if err != nil {
				continue
			}
			for _, want := range acceptable {
				if mediaType == want {
					return true
				}
			}
		}
	}
	return false
}
