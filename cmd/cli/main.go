package main

import (
	"github.com/junjiewwang/classgraph/cmd/cli/cmd"
)

func main() {
	cmd.Execute()
}
