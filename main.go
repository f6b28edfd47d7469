package main

import (
	"github.com/reviewos/kit/cmd"
)

func main() {
	cmd.Execute()
}
