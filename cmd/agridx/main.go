package main

import "github.com/VanDung-dev/AgriDx-Engine/cli"

func main() {
	cli.Execute()
}
