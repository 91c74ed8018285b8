package actor

import "github.com/roasbeef/lethe/internal/build"

// log is the subsystem logger for the actor package.
var log = build.NewSubLogger("ACTR")
