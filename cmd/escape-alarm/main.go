package main

import "github.com/oshokin/escape-alarm/cmd/escape-alarm/cmd"

func main() {
	cmd.Execute()
}
