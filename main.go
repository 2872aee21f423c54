package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/919927181/rdbmem/dump"
)

func main() {
	app := cli.NewApp()
	app.Name = "rdbmem"
	app.Usage = "decode redis rdb files and estimate the memory of every key"
	app.Version = "v0.1.0"
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	app.Commands = dump.Commands()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rdbmem: %v\n", err)
		os.Exit(1)
	}
}
