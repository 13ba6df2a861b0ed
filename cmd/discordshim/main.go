package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/lk2023060901/discord-shim-go/cmd/discordshim/command"
)

func main() {
	command.Execute()
}
