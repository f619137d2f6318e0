package main

import "github.com/davarch/pipeline-lineage/cmd/pipeline-lineage/cli"

func main() {
	cli.Execute()
}
