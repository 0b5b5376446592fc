// Command waywall is the nested compositor's entrypoint. Subcommand
// dispatch is hand-rolled over os.Args rather than a flag-parsing
// library, using direct argument inspection rather than a flag
// framework.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "wrap":
		err = cmdWrap(os.Args[2:])
	case "exec", "launch":
		argv := os.Args[2:]
		if os.Args[1] == "exec" {
			if len(argv) < 1 || argv[0] != "launch" {
				printUsage()
				os.Exit(1)
			}
			argv = argv[1:]
		}
		err = cmdLaunch(argv)
	case "cpu":
		err = cmdCPU(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "waywall: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "USAGE: %s {run|wrap|exec launch|cpu} [ARGS...]\n", os.Args[0])
}
