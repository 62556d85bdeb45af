/*
	Copyright 2023 Markus Papenbrock
*/

package main

import "github.com/mpapenbr/lapsync/cmd"

func main() {
	cmd.Execute()
}
