package main

import (
	"github.com/luma/ferry/cmd"
)

func main() {
	cmd.Execute()
}
