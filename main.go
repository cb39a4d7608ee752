package main

import "github.com/andresmejia3/pipscan/cmd"

func main() {
	cmd.Execute()
}
