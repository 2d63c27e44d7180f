package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/lychee-technology/weave/internal"
)

func runLint(args []string) error {
	flags := flag.NewFlagSet("lint", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		zap.S().Info("Usage: weave-tools lint <file-or-dir>...")
		zap.S().Info("")
		zap.S().Info("Options:")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("at least one template file or directory is required")
	}

	documents, err := readTemplateDocuments(flags.Args())
	if err != nil {
		return err
	}

	registry := internal.NewRegistry(documents)
	report := registry.Report()

	for _, name := range registry.Names() {
		zap.S().Infof("ok: %s", name)
	}
	if report.Ok() {
		zap.S().Infof("%d template(s), no errors", len(report.Loaded))
		return nil
	}

	sources := make([]string, 0, len(report.Failed))
	for source := range report.Failed {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		zap.S().Errorf("%s: %v", source, report.Failed[source])
	}
	return fmt.Errorf("%d template(s) failed to parse", len(report.Failed))
}

// readTemplateDocuments loads template text from files and directories.
// Directories are read one level deep, picking up .tmpl and .sql files.
func readTemplateDocuments(paths []string) (map[string]string, error) {
	documents := make(map[string]string)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			documents[path] = string(data)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if ext != ".tmpl" && ext != ".sql" {
				continue
			}
			full := filepath.Join(path, entry.Name())
			data, err := os.ReadFile(full)
			if err != nil {
				return nil, err
			}
			documents[full] = string(data)
		}
	}
	return documents, nil
}
