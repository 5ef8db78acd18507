package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/clktmr/de/hw"
	"github.com/clktmr/de/output"
	"github.com/clktmr/de/regmap"
)

const peekUsageString = `Dump the core registers of a display engine through /dev/mem.

Usage: %s [flags]

`

var (
	peekFlags = flag.NewFlagSet("peek", flag.ExitOnError)

	peekBase    = peekFlags.Uint64("base", 0x0100_0000, "physical address of the engine registers")
	peekOutputs = peekFlags.Int("outputs", 2, "number of outputs")
)

func peekUsage() {
	fmt.Fprintf(peekFlags.Output(), peekUsageString, "peek")
	peekFlags.PrintDefaults()
}

func peekMain(args []string) {
	peekFlags.Usage = peekUsage
	peekFlags.Parse(args[1:])
	if peekFlags.NArg() != 0 {
		peekFlags.Usage()
		os.Exit(1)
	}

	w, err := hw.MapDevMem(*peekBase, int(regmap.Output(*peekOutputs)))
	if err != nil {
		log.Fatalln(err)
	}
	defer w.Close()

	p := output.Printer()
	m, n := regmap.ClkDivFields(hw.Reg(w, regmap.ClkDiv).Load())
	p.Printf("version=%#08x ctrl=%#x clkdiv=m%d/n%d\n",
		hw.Reg(w, regmap.Version).Load(), hw.Reg(w, regmap.Ctrl).Load(), m, n)
	for i := range *peekOutputs {
		base := regmap.Output(i)
		reg := func(off uint32) uint32 { return hw.Reg(w, base+off).Load() }
		p.Printf("output %d: head=%#x_%08x len=%d ctrl=%#x status=%#x dbuf=%#x line=%d irq=%#x/%#x\n", i,
			reg(regmap.RCQHeadHigh), reg(regmap.RCQHeadLow), reg(regmap.RCQLen),
			reg(regmap.RCQCtrl), reg(regmap.RCQStatus), reg(regmap.DBufCtrl),
			reg(regmap.Line), reg(regmap.IRQStatus), reg(regmap.IRQEnable))
	}
}
