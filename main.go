package main

import (
	"github.com/foomo/caretaker/cmd"
)

func main() {
	cmd.Execute()
}
