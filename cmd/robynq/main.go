package main

import "github.com/marketsci/robynq/internal/cli"

func main() {
	cli.Execute()
}
