package main

import "github.com/oshokin/dynamic-timers/cmd/timer-server/cmd"

func main() {
	cmd.Execute()
}
