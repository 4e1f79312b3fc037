package main

import "github.com/signkeeper/signkeeper/cmd"

func main() {
	cmd.Execute()
}
