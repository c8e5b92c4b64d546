package main

import (
	"github.com/wonny/talos/cmd/talos/commands"
)

func main() {
	commands.Execute()
}
