// Command hearnow is the meeting transcript TUI and its session tools.
package main

import "github.com/codev612/hearnow/internal/cli"

func main() {
	cli.Execute()
}
