package main

import (
	"context"
	"errors"
	"time"
)

var errNoURI = errors.New("--uri is required")

func contextSleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
