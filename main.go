package main

import "pdf-redactor/cmd"

func main() {
	cmd.Execute()
}
