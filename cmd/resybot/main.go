package main

import "github.com/dcallahan11/resybot-open/cmd"

func main() {
	cmd.Execute()
}
