package main

import (
	"log"

	"github.com/next-trace/scg-port-bridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatal(err)
	}
}
