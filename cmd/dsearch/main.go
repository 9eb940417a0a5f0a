package main

import "github.com/ZanzyTHEbar/drive-search/dsearch/cli"

func main() {
	cli.Execute()
}
