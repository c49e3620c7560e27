package main

import "github.com/jmcleod/quill/cmd/quill/cmd"

func main() {
	cmd.Execute()
}
