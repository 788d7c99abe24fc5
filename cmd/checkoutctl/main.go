package main

import "github.com/joao-fontenele/checkout-ledger/internal/cli"

func main() {
	cli.Execute()
}
