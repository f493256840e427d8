package main

import "github.com/dbsmedya/crashed/cmd/crashed/cmd"

func main() {
	cmd.Execute()
}
