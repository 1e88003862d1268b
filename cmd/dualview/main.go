package main

import "github.com/dualview-dev/dualview/cmd/dualview/commands"

func main() {
	commands.Execute()
}
