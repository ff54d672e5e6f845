package main

import "github.com/Norgate-AV/glyphd/cmd"

func main() {
	cmd.Execute()
}
