package main

import (
	"github.com/wheelhouse/wheelhouse/cmd/wheelhouse/commands"
)

func main() {
	commands.Execute()
}
