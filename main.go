package main

import (
	"os"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
