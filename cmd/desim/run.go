package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/clktmr/de/engine"
)

const runUsageString = `Execute a command script against a simulated display engine.

Usage: %s [flags] <script>...

A script of "-" is read from standard input.

`

var (
	runFlags = flag.NewFlagSet("run", flag.ExitOnError)

	profile  = runFlags.String("profile", "rcq", "hardware profile, see 'desim profiles'")
	realtime = runFlags.Bool("realtime", true, "generate vertical blanking from the output timing")
	base     = runFlags.Uint64("base", 0x0100_0000, "device address of the engine registers")
	verbose  = runFlags.Bool("v", false, "log engine messages")
)

func runUsage() {
	fmt.Fprintf(runFlags.Output(), runUsageString, "run")
	runFlags.PrintDefaults()
}

func runMain(args []string) {
	runFlags.Usage = runUsage
	runFlags.Parse(args[1:])
	if runFlags.NArg() < 1 {
		runFlags.Usage()
		os.Exit(1)
	}

	prof, ok := engine.Profiles[*profile]
	if !ok {
		log.Fatalln("unknown profile:", *profile)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := log.New(os.Stderr, "", 0)
	if !*verbose {
		logger.SetOutput(io.Discard)
	}
	s, err := newSession(ctx, prof, *base, *realtime, logger, os.Stdout)
	if err != nil {
		log.Fatalln(err)
	}

	for _, name := range runFlags.Args() {
		f := os.Stdin
		if name != "-" {
			f, err = os.Open(name)
			if err != nil {
				s.Close()
				log.Fatalln(err)
			}
		}
		err = s.Exec(name, f)
		f.Close()
		if err != nil {
			s.Close()
			log.Fatalln(err)
		}
	}
	if err := s.Close(); err != nil {
		log.Fatalln(err)
	}
}

func profilesMain() {
	for _, name := range engine.ProfileNames() {
		p := engine.Profiles[name]
		fmt.Printf("%-14s strategy=%-4v outputs=%d channels=%d safe-line=%t auto-freq=%t\n",
			name, p.Strategy, p.Outputs, p.Channels, p.WaitSafeLine, p.AutoFreq)
	}
}
