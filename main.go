package main

import "github.com/fernandes-group/tenderscan/cmd"

func main() {
	cmd.Execute()
}
