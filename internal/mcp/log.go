package mcp

import "github.com/roasbeef/lethe/internal/build"

var log = build.NewSubLogger("MCPC")
