package main

import (
	"os"

	"github.com/aweb-dev/aweb/awebservice"
)

func main() {
	if err := awebservice.Run(); err != nil {
		os.Exit(1)
	}
}
