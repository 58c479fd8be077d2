// Package main provides the database migration tool for the SIPSA service.
//
// Usage:
//
//	migrator up       apply all pending migrations
//	migrator down     roll back the last migration
//	migrator version  print the current migration version
//	migrator drop     drop all database objects (destructive)
package main

import (
	"fmt"
	"log"
	"os"
)

const (
	version = "1.0.0"
	name    = "migrator"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	command := os.Args[1]

	if command == "--version" {
		fmt.Printf("%s v%s\n", name, version)

		return
	}

	runner, err := NewRunner(LoadConfig())
	if err != nil {
		log.Fatalf("Failed to initialize migrator: %v", err)
	}

	defer func() {
		_ = runner.Close()
	}()

	switch command {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "version":
		err = runner.Version()
	case "drop":
		err = runner.Drop()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("Migration command %q failed: %v", command, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [up|down|version|drop|--version]\n", name)
}
