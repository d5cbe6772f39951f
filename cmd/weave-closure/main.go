// Command weave-closure computes the set of types the weaving engine needs
// before its transformer activates, and verifies a maintained preinitialize
// list against it.
//
//	weave-closure compute --program bootstrap.yaml
//	weave-closure verify --program bootstrap.yaml --list preinitialize.txt
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
