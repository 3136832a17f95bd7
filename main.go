package main

import "veloskill/internal/cli"

func main() {
	cli.Execute()
}
