package main

import "github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/cli"

func main() {
	cli.Main()
}
