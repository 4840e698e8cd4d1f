package main

import "FMEdge/cmd"

func main() {
	cmd.Execute()
}
