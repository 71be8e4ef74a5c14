package main

import "os"

func main() {
	app, err := wireApp()
	if err := newRootCmd(app, err).Execute(); err != nil {
		os.Exit(1)
	}
}
