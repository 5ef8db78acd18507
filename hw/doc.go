// Package hw provides the hardware abstraction used by the display engine
// driver.
//
// It implements low-level access to register windows, device visible memory
// and interrupt safe notifications. Everything here is directly exposed and in
// general unsafe to use without the higher level packages. A register window
// is either mapped from /dev/mem or simulated in plain memory, which is what
// the tests and the simulator in package sim use.
package hw
