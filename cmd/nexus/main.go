package main

import "nexus/internal/cli"

func main() {
	cli.Execute()
}
