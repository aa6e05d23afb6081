package main

import "github.com/dvanle/relay/internal/cli"

func main() {
	cli.Execute()
}
