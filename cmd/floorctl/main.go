package main

import "github.com/iliyamo/casino-floor/internal/cli"

func main() {
	cli.Execute()
}
