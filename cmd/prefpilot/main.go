package main

import "github.com/xkilldash9x/prefpilot/cmd"

func main() {
	cmd.Execute()
}
