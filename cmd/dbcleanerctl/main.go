// Command dbcleanerctl drives the forced test transaction of a process that
// serves the dbcleaner admin API.
//
//	dbcleanerctl --server http://app:7070 health --wait
//	dbcleanerctl start
//	dbcleanerctl rollback
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := App(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
