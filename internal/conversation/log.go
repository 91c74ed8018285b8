package conversation

import "github.com/roasbeef/lethe/internal/build"

// log is the subsystem logger for the conversation package.
var log = build.NewSubLogger("CONV")
