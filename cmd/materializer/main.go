package main

import "github.com/crewboard/materializer/services/materializer/cli"

func main() {
	cli.Execute()
}
