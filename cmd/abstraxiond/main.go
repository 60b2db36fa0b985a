package main

import "github.com/burnt-labs/abstraxion-backend/cmd/abstraxiond/cmd"

func main() {
	cmd.Execute()
}
