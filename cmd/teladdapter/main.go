package main

import (
	"github.com/katu09161004/tel-addapter/cmd/teladdapter/cmd"
)

func main() {
	cmd.Execute()
}
