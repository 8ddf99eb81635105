package main

import "github.com/buildscan/qto/cmd/qto/cmd"

func main() {
	cmd.Execute()
}
