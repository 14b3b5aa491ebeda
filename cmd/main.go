package main

import (
	"os"
)

func main() {
	// cobra reports the error itself
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
