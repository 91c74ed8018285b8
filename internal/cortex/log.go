package cortex

import "github.com/roasbeef/lethe/internal/build"

var log = build.NewSubLogger("CRTX")
