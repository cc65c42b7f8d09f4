package main

import (
	"os"

	"github.com/malbeclabs/sportsql/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
