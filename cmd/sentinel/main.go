package main

import "github.com/yapay-ai/cloudcost-sentinel/internal/cli"

func main() {
	cli.Execute()
}
