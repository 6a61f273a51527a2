package main

import (
	"github.com/opsmatic/opsmatic-handler/cmd/opsmatic-handler/commands"
)

func main() {
	commands.Execute()
}
