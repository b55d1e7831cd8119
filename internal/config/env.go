package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}
