package main

import "resume-rag/internal/cli"

func main() {
	cli.Execute()
}
