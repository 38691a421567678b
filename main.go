package main

import "fxload/cmd"

func main() {
	cmd.Execute()
}
