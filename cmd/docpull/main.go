package main

import (
	"github.com/docpull/docpull/pkg/cmd"
	_ "github.com/docpull/docpull/pkg/transform/builtin"
)

func main() {
	cmd.Execute()
}
