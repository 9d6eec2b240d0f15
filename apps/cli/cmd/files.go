package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/config"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
)

// collectFiles expands directories into the descriptors below them. Files
// named explicitly are kept whatever their extension.
func collectFiles(args []string) ([]string, error) {
	var files []string
	seen := map[string]bool{}
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if !info.IsDir() {
			add(arg)
			continue
		}

		var found []string
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && descriptor.IsDescriptor(path) && !isConfigFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}

	return files, nil
}

func isConfigFile(path string) bool {
	return slices.Contains(config.ConfigFilenames, filepath.Base(path))
}

func requireFiles(args []string) ([]string, error) {
	files, err := collectFiles(args)
	if err != nil {
		return nil, usageError(err)
	}
	if len(files) == 0 {
		return nil, usageError(fmt.Errorf("no descriptor files found (expected %v)", descriptor.Extensions))
	}
	return files, nil
}
