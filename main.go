package main

import "github.com/GhostKellz/zmake/cmd"

func main() {
	cmd.Execute()
}
