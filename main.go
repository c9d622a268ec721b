package main

import "github.com/kozaktomas/face-sync/cmd"

func main() {
	cmd.Execute()
}
