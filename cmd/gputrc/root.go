package main

import (
	"io"
	"log"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/gputrc/gputrc"
)

type rootConfig struct {
	stdout io.Writer
	stderr io.Writer

	logLevel string

	contexts    []string
	query       string
	minDuration time.Duration
	isSentinel  bool
	isMeasured  bool
	filter      gputrc.Filter

	info, debug *log.Logger
}

func (cfg *rootConfig) registerBaseFlags(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log",
		Value:       ffval.NewEnum(&cfg.logLevel, "info", "i", "debug", "d", "none", "n"),
		Usage:       "log level: i/info, d/debug, n/none",
		Placeholder: "LEVEL",
	})
}

func (cfg *rootConfig) registerFilterFlags(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName: 'c',
		LongName:  "context",
		Value:     ffval.NewUniqueList(&cfg.contexts),
		NoDefault: true,
		Usage:     "context (queue) name (repeatable)",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'q',
		LongName:    "query",
		Value:       ffval.NewValue(&cfg.query),
		NoDefault:   true,
		Usage:       "query expression over zone name, function, and file",
		Placeholder: "REGEX",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName: 'd',
		LongName:  "duration",
		Value:     ffval.NewValue(&cfg.minDuration),
		NoDefault: true,
		Usage:     "only zones of at least this device duration",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:  "sentinel",
		Value:     ffval.NewValue(&cfg.isSentinel),
		NoDefault: true,
		Usage:     "only sentinel (never-submitted) zones",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:  "measured",
		Value:     ffval.NewValue(&cfg.isMeasured),
		NoDefault: true,
		Usage:     "only measured (non-sentinel) zones",
	})
}
