package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/burnwatch/burnwatch/internal/slo"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateDir := validateCmd.String("dir", "", "directory containing SLO definition YAML files")

	lintCmd := flag.NewFlagSet("lint", flag.ExitOnError)
	lintFile := lintCmd.String("file", "", "single SLO definition file to check")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if *validateDir == "" {
			fmt.Fprintln(os.Stderr, "Error: --dir flag is required")
			validateCmd.Usage()
			os.Exit(1)
		}
		os.Exit(runValidate(*validateDir))
	case "lint":
		lintCmd.Parse(os.Args[2:])
		if *lintFile == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			lintCmd.Usage()
			os.Exit(1)
		}
		os.Exit(runLint(*lintFile))
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: burnwatch <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  validate --dir <path>    Validate all SLO definition files in a directory")
	fmt.Println("  lint --file <path>       Validate a single definition and print its effective values")
	fmt.Println()
}

func runValidate(dirPath string) int {
	validator, err := slo.NewValidator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		return 1
	}

	errors := validator.ValidateDirectory(dirPath)

	if len(errors) == 0 {
		fmt.Println("✓ All SLO definition files are valid")
		return 0
	}

	errorsByFile := make(map[string][]slo.ValidationError)
	for _, err := range errors {
		errorsByFile[err.File] = append(errorsByFile[err.File], err)
	}

	var files []string
	for file := range errorsByFile {
		files = append(files, file)
	}
	sort.Strings(files)

	for _, file := range files {
		fmt.Fprintf(os.Stderr, "✗ %s\n", file)
		for _, verr := range errorsByFile[file] {
			if verr.Path != "" {
				fmt.Fprintf(os.Stderr, "    %s: %s\n", verr.Path, verr.Message)
			} else {
				fmt.Fprintf(os.Stderr, "    %s\n", verr.Message)
			}
		}
	}
	fmt.Fprintf(os.Stderr, "\n%d validation error(s)\n", len(errors))
	return 1
}

func runLint(filePath string) int {
	// LoadFromDirectory walks a single file path just as well as a directory.
	defs, loadErrors := slo.LoadFromDirectory(filePath)
	if len(loadErrors) > 0 || len(defs) == 0 {
		fmt.Fprintf(os.Stderr, "Error: could not read %s\n", filePath)
		for _, le := range loadErrors {
			fmt.Fprintf(os.Stderr, "    %s\n", le.Message)
		}
		return 1
	}

	validator, err := slo.NewValidator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		return 1
	}

	exit := 0
	for _, dwf := range defs {
		if verrs := validator.ValidateDefinition(dwf.File, dwf.Definition); len(verrs) > 0 {
			for _, ve := range verrs {
				fmt.Fprintf(os.Stderr, "✗ %s\n", ve.Error())
			}
			exit = 1
			continue
		}

		def := dwf.Definition
		def.ApplyDefaults()
		fmt.Printf("✓ %s (tenant %s)\n", def.ID, def.TenantID)
		fmt.Printf("    target:      %.4f (error budget %.4f)\n", def.Target, 1-def.Target)
		fmt.Printf("    windows:     fast %s (>= %.1fx) / slow %s (>= %.1fx)\n",
			def.FastWindow, def.FastBurnThreshold, def.SlowWindow, def.SlowBurnThreshold)
		fmt.Printf("    compliance:  %dd (%s)\n", def.WindowDays, slo.FormatDuration(time.Duration(def.WindowDays)*24*time.Hour))
		fmt.Printf("    fingerprint: %s\n", def.Fingerprint())
	}
	return exit
}
