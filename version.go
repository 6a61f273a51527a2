package opsmatic

import (
	_ "embed"
	"strings"
)

//go:embed version.txt
var rawVersion string

// Version is sent in the collector User-Agent.
var Version = strings.TrimSpace(rawVersion)
