// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package config parses the server's command-line flags. Like the teacher's
// cmd/relay-server and cmd/tunnel, there is no config file and no
// environment variables — just flags, with defaults that reproduce spec.md's
// fixed constants exactly.
package config

import (
	"flag"
	"time"
)

// Config holds every tunable of the chess relay process.
type Config struct {
	Listen             string
	LobbyCapacity      int
	ErrorLogPath       string
	MetricsListen      string
	PairRequestTimeout time.Duration
}

// Parse parses os.Args[1:] (via the flag package's default FlagSet).
func Parse() *Config {
	c := &Config{}
	flag.StringVar(&c.Listen, "listen", ":42069", "chess relay TCP listen address")
	flag.IntVar(&c.LobbyCapacity, "lobby-capacity", 50, "maximum simultaneous lobby members")
	flag.StringVar(&c.ErrorLogPath, "error-log", "errorLog.txt", "path to the append-only error log")
	flag.StringVar(&c.MetricsListen, "metrics-listen", ":9090", "Prometheus /metrics listen address")
	flag.DurationVar(&c.PairRequestTimeout, "pair-request-timeout", 10*time.Second, "pair-request watchdog duration")
	flag.Parse()
	return c
}
