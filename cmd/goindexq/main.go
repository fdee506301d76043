package main

import "github.com/dbsmedya/goindexq/cmd/goindexq/cmd"

func main() {
	cmd.Execute()
}
