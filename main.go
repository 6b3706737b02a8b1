package main

import (
	"fmt"
	"os"

	n14 "github.com/nil071n/N14/app"
)

func main() {
	app, err := n14.New(nil, nil)
	if err != nil {
		failed(1, "failed to start: %v\n", err)
	}
	if err := app.Start(); err != nil {
		failed(1, "app exit: %v\n", err)
	}
}

func failed(code int, s string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, s, args...)
	os.Exit(code)
}
