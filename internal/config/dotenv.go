package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// dotenvFileName is the file searched for when DOTENV_PATH is not set.
const dotenvFileName = ".env"

// dotenvPathVar names an explicit dotenv file, bypassing the upward search.
const dotenvPathVar = "DOTENV_PATH"

// findDotenv walks from dir toward the filesystem root and returns the first
// regular file named .env. It reports false when none exists.
func findDotenv(dir string, stat func(string) (fs.FileInfo, error)) (string, bool) {
	for {
		candidate := filepath.Join(dir, dotenvFileName)
		if info, err := stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// resolveDotenvPath picks the dotenv file for this process. An explicit
// DOTENV_PATH must exist; the implicit search may find nothing.
func resolveDotenvPath(deps loaderDeps) (string, bool, error) {
	if explicit, ok := deps.lookupEnv(dotenvPathVar); ok && explicit != "" {
		if _, err := deps.stat(explicit); err != nil {
			return "", false, &ConfigError{
				Type:    ErrDotenv,
				Message: fmt.Sprintf("%s points at %q", dotenvPathVar, explicit),
				Err:     err,
			}
		}
		return explicit, true, nil
	}

	wd, err := deps.getwd()
	if err != nil {
		// Without a working directory there is nothing to search; run on the
		// process environment alone.
		return "", false, nil
	}

	path, found := findDotenv(wd, deps.stat)
	return path, found, nil
}

// readDotenv parses the dotenv file at path without touching the process
// environment.
func readDotenv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, &ConfigError{
			Type:    ErrDotenv,
			Message: fmt.Sprintf("failed to parse %s", path),
			Err:     err,
		}
	}
	return values, nil
}
