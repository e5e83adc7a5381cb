package main

import "github.com/OpenTraceLab/encspi/cmd/encspi/cmd"

func main() {
	cmd.Execute()
}
