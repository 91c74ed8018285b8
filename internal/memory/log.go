package memory

import "github.com/roasbeef/lethe/internal/build"

var log = build.NewSubLogger("MEMO")
