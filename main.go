package main

import "github.com/DrUlysses/Kristine-sub000/cmd"

func main() {
	cmd.Execute()
}
