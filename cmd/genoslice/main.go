// Command genoslice imports genotype matrices and extracts marker and sample
// subsets from them.
//
// Storage is configured through the environment: GENOMATRIX_BLOB_DRIVER and
// friends select where chunk blobs live, GENOMATRIX_STORAGE_DRIVER selects the
// metadata store.
package main

import (
	"context"
	"io"
	"os"
)

var exitFunc = os.Exit

func main() {
	exitFunc(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(openApp)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
