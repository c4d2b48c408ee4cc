package main

import (
	"log"

	"github.com/mateuskih/Trabalho-1-UDP/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error: %v\n", err)
	}
}
