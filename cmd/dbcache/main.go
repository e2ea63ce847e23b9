/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ssargent/dbcache/cmd/dbcache/cmd"

func main() {
	cmd.Execute()
}
