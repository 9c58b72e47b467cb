// Command loanctl runs batch and maintenance jobs against the lending
// database: the overdue sweep, migrations and item count repair.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
