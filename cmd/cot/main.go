package main

import (
	"os"

	"github.com/example/cotflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
