package main

import "github.com/clipstash/clipstash/cmd"

func main() {
	cmd.Execute()
}
