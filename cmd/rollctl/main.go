package main

import "github.com/agentregistry-dev/modelregistry/pkg/cli"

func main() {
	cli.Execute()
}
