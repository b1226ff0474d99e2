// Command groupcartctl runs maintenance jobs and inspects state directly
// against the group cart database.
package main

import (
	"fmt"
	"os"

	"github.com/mmynk/groupcart/pkg/logging"
)

func main() {
	logging.Setup()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
