// Command delayed migrates, inspects and serves a delayed_jobs table.
//
// The stock binary knows no payload types, so it cannot run jobs; build a
// binary of your own around cli.Execute with cli.WithRegistration for that.
package main

import (
	"os"

	"github.com/jdziat/delayed/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
