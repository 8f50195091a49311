package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/coffeevibes888/rentflowhq-sub007/apps/cli/root"
)

func main() {
	// Local .env keeps command lines short; a missing file is fine.
	_ = godotenv.Load()

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
