package agora

import (
	"fmt"
	"runtime"
)

// Build information, injected at link time.
var (
	CurrentVersion = "0.1.0"
	CurrentBranch  = "unknown"
	CurrentCommit  = "unknown"
	BuildDate      = "unknown"
)

var (
	Platform  = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	GoVersion = runtime.Version()
)
