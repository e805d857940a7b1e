package main

import "github.com/vibast-solutions/ms-go-credentials/cmd"

func main() {
	cmd.Execute()
}
