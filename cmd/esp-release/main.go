package main

import "github.com/oshokin/esp-release/cmd/esp-release/cmd"

func main() {
	cmd.Execute()
}
