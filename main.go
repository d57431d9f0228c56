// Command confluxd runs Conflux, the distributed configuration center.
package main

import "github.com/conflux-sh/conflux/cmd/confluxd"

func main() {
	confluxd.Execute()
}
