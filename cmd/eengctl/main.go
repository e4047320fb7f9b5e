// Command eengctl is the CLI front end for an eeng-core engine instance,
// grounded on the teacher's cmd/tutu/main.go (a one-line call into the
// cli package's Execute()).
package main

import "github.com/cjgribel/eeng-core/internal/cli"

func main() {
	cli.Execute()
}
