// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagServer, flagGops, flagVersion, flagLogDateTime, flagRecord bool
	flagConfigFile, flagLogLevel, flagVerifyReplay                 string
	flagTicks                                                      uint64
)

func cliInit() {
	flag.BoolVar(&flagServer, "server", false, "Start the HTTP server and keep ticking until interrupted")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.BoolVar(&flagRecord, "record", false, "Record a replay file into the archive directory while serving")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json`")
	flag.StringVar(&flagLogLevel, "loglevel", "warn", "Sets the logging level: `[debug, info, warn (default), err, crit]`")
	flag.StringVar(&flagVerifyReplay, "verify-replay", "", "Verify a replay recording against the configured world and exit")
	flag.Uint64Var(&flagTicks, "ticks", 0, "With -verify-replay absent and -server absent: run this many lockstep ticks and exit")
	flag.Parse()
}
