package main

import "retail-etl/cmd"

func main() {
	cmd.Execute()
}
