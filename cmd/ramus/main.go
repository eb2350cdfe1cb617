package main

import "github.com/ramusdb/ramus/cmd/ramus/cmd"

func main() { cmd.Execute() }
