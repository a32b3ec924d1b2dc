package main

import (
	"github.com/tallyledger/tally/app/wallet/cli/cmd"
)

func main() {
	cmd.Execute()
}
