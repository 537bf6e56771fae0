package main

import (
	"fmt"

	"github.com/spf13/cobra"

	// Import the engine to register its native modules
	_ "github.com/vovakirdan/scriptworld/internal/engine"
	"github.com/vovakirdan/scriptworld/internal/registry"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List native modules scripts can require",
	Long:  `Shows every native module registered with the interpreter.`,
	Run:   runModules,
}

func runModules(_ *cobra.Command, _ []string) {
	modules := registry.List()

	if len(modules) == 0 {
		fmt.Println("No native modules registered.")
		return
	}

	fmt.Println("Native modules:")
	fmt.Println()

	// Calculate column widths
	maxNameLen := 4 // "Name" header
	for _, m := range modules {
		if len(m.Name) > maxNameLen {
			maxNameLen = len(m.Name)
		}
	}

	fmt.Printf("  %-*s  %s\n", maxNameLen, "Name", "Description")
	fmt.Printf("  %-*s  %s\n", maxNameLen, "----", "-----------")

	for _, m := range modules {
		fmt.Printf("  %-*s  %s\n", maxNameLen, m.Name, m.Description)
	}

	fmt.Println()
	fmt.Println("Use require(\"<name>\") in a script to load one.")
}
