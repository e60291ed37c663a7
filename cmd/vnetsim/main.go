// Vnetsim runs virtual internet simulations described by scenario files.
package main

import "github.com/vnetsim/vnetsim/cmd/vnetsim/cmd"

func main() {
	cmd.Execute()
}
