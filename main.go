package main

import "github.com/richarai7/platelet-pooling-simulator-draft/cmd"

func main() {
	cmd.Execute()
}
