package main

import "github.com/Goal651/discord-bot-server/cmd/relay/cmd"

func main() {
	cmd.Execute()
}
