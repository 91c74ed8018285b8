package llm

import "github.com/roasbeef/lethe/internal/build"

// log is the subsystem logger for the llm package.
var log = build.NewSubLogger("LLM")
