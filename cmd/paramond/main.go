package main

import "github.com/oneconcern/paramon/cmd/paramond/cmd"

func main() {
	cmd.Execute()
}
