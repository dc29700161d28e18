// Command bench measures add, cancel and match throughput of a bare
// order book.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"
)

func main() {
	n := flag.Uint64("n", 100_000, "orders per scenario")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	if err := run(*n, *seed); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(n, seed uint64) error {
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	add, err := benchAdd(n, rng)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	add.print(os.Stdout)

	cancel, err := benchCancel(n)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	cancel.print(os.Stdout)

	match, err := benchMatch(n, rng)
	if err != nil {
		return fmt.Errorf("match: %w", err)
	}
	match.print(os.Stdout)
	return nil
}
