package main

import "github.com/wecanfarm/wecanfarm/cmd"

func main() {
	cmd.Execute()
}
