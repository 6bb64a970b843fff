package main

import "structurizer/cmd"

func main() {
	cmd.Execute()
}
