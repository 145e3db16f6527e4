package main

import "github.com/nimezhu/bbindex/cmd/bbidx/cmd"

func main() {
	cmd.Execute()
}
