package main

import "github.com/deployd/deploy-agent/cmd/deploy-agent/cmd"

func main() {
	cmd.Execute()
}
