package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/scitix/snapcheck/version.RELEASE=...".
var (
	RELEASE = "UNKNOWN"
	REPO    = "UNKNOWN"
	COMMIT  = "UNKNOWN"
)

func String() string {
	return fmt.Sprintf(`
snapcheck
  Release:	%v
  Build:	%v
  Repository:	%v
  Go:		%v %s/%s
	`, RELEASE, COMMIT, REPO, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
