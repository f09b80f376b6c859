package main

import "github.com/ValentinKolb/dTree/cmd"

func main() {
	cmd.Execute()
}
