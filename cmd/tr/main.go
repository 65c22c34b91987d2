package main

import (
	"os"

	"github.com/neg4n/tr/cmd/tr/cmds"
)

func main() {
	if cmds.New().Execute() != nil {
		os.Exit(1)
	}
}
