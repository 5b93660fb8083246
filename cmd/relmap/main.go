// Command relmap manages SQLite databases described by relmap schema and
// mapping documents.
package main

import "github.com/mesh-intelligence/relmap/internal/cli"

func main() {
	cli.Execute()
}
