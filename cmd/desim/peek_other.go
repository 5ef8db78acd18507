//go:build !linux

package main

import "log"

func peekMain(args []string) {
	log.Fatalln("peek: /dev/mem is only supported on linux")
}
