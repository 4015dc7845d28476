// Command trajstore manages trajectory datasets from the command line.
package main

import "github.com/mesh-intelligence/trajstore/internal/cli"

func main() {
	cli.Execute()
}
