package main

import "github.com/vietddude/seedscan/internal/cli"

func main() {
	cli.Execute()
}
