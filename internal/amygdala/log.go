package amygdala

import "github.com/roasbeef/lethe/internal/build"

var log = build.NewSubLogger("AMYG")
