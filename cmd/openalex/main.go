package main

import "github.com/Sternrassler/openalex-client/cmd/openalex/cmd"

func main() {
	cmd.Execute()
}
