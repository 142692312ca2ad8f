package testing

import (
	"os"
	"path"
	"runtime"
)

// Importing this package for its side effect moves the test process to the
// repository root, so relative paths (logs/, sqlite files) resolve the same
// way they do for the server binary:
//
//	import _ "liyu1981.xyz/crib-monitor-service/pkg/testing"
func init() {
	_, filename, _, _ := runtime.Caller(0)
	root := path.Join(path.Dir(filename), "..", "..")
	if err := os.Chdir(root); err != nil {
		panic(err)
	}
}
