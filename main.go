// The main package for the finder executable.
package main

import (
	"github.com/finderhq/influencer-finder/cmd"
)

func main() {
	cmd.Execute()
}
