package main

import (
	"github.com/raniellyferreira/redis-replicator/cmd/rdb-replicator/commands"
)

// version is overridden during the build with the go linker
var version = "dev"

func main() {
	commands.SetVersion(version)
	commands.Execute()
}
