package main

import (
	"os"

	"github.com/xela07ax/demonlist-history/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
