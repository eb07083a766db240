// Package main is the entry point for the cellkit command line tool.
package main

func main() {
	Execute()
}
