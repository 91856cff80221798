package main

import (
	"market-news-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
