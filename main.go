package main

import "github.com/RichardoC/relaychat/internal/commands"

func main() {
	commands.Execute()
}
