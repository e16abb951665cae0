// The main package for the kirjasto-harvester executable.
package main

import (
	"github.com/artiklix/kirjasto-harvester/cmd"
)

func main() {
	cmd.Execute()
}
