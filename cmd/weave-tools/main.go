package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "lint":
		if err := runLint(os.Args[2:]); err != nil {
			sugar.Fatalf("lint: %v", err)
		}
	case "compile":
		if err := runCompile(os.Args[2:]); err != nil {
			sugar.Fatalf("compile: %v", err)
		}
	default:
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: weave-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  lint      Parse template files and report malformed templates")
	logger.Info("  compile   Compile one template against a catalog and print the SQL")
}
