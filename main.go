package main

import "github.com/ValentinKolb/dDS/cmd"

func main() {
	cmd.Execute()
}
