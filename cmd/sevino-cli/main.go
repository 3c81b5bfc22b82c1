package main

import (
	"fmt"
	"os"
)

var version = "dev"

var endpoint string

func init() {
	endpoint = envOrDefault("SEVINO_ENDPOINT", "http://127.0.0.1:8000")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Parse global flags before subcommand
	args := os.Args[1:]
	for len(args) > 0 && len(args[0]) > 0 && args[0][0] == '-' {
		switch args[0] {
		case "--endpoint":
			if len(args) < 2 {
				fatal("--endpoint requires a value")
			}
			endpoint = args[1]
			args = args[2:]
		case "--version", "-v":
			fmt.Printf("sevino-cli %s\n", version)
			os.Exit(0)
		case "--help", "-h":
			printUsage()
			os.Exit(0)
		default:
			fatal("unknown flag: " + args[0])
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "bucket":
		runBucket(cmdArgs)
	case "object":
		runObject(cmdArgs)
	case "stats":
		runStats(cmdArgs)
	case "activity":
		runActivity(cmdArgs)
	case "version":
		fmt.Printf("sevino-cli %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: sevino-cli [flags] <command> <subcommand> [args]

Global Flags:
  --endpoint <url>     Sevino endpoint (default: $SEVINO_ENDPOINT or http://127.0.0.1:8000)
  --version, -v        Show version

Commands:
  bucket               Bucket operations (list, create, delete, info)
  object               Object operations (ls, put, get, rm, stat, versions)
  stats                Show service statistics
  activity             Show recent operations
  version              Show version
  help                 Show this help`)
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}
