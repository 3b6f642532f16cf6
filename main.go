package main

import (
	"fmt"
	"os"

	"github.com/cidmesh/cidmesh/cli"
)

func main() {
	if err := cli.Start(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
