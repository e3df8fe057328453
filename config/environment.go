package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvironment loads variables from a .env file when one exists next to
// the binary. Real environment variables always win.
func LoadEnvironment() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load()
}
