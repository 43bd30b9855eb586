package main

import "github.com/uprintf-go/uprintf/cmd/uprintfgo"

func main() {
	uprintfgo.Execute()
}
