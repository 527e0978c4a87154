// Command iopata drives a simulated host and I/O coprocessor bridge: it reads
// disk images through the storage port, sequences the expansion device power
// and programs transfer modes.
package main

import "github.com/ps2iop/iopata/iopata/cmd"

func main() {
	cmd.Execute()
}
