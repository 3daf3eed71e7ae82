package main

import (
	"github.com/seedgate/seedgate/cmd"
)

func main() {
	cmd.Execute()
}
