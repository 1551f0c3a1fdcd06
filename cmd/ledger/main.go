package main

import "github.com/JoeShih716/go-stmt-ledger/cmd/ledger/commands"

func main() {
	commands.Execute()
}
