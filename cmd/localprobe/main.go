package main

import "github.com/vietddude/localprobe/internal/cli"

func main() {
	cli.Execute()
}
