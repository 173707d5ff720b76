package main

import "github.com/cloodei/apt-attendance/cmd"

func main() {
	cmd.Execute()
}
