package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFileVar overrides the --env flag when set.
const EnvFileVar = "NEWSDESK_ENV_FILE"

// EnvLoader loads .env files with a predictable override order:
// NEWSDESK_ENV_FILE, then the --env flag, then its basename, then the default path.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers an --env flag and returns an EnvLoader.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	return &EnvLoader{
		value:       fs.String("env", defaultPath, description),
		defaultPath: defaultPath,
	}
}

// Load applies the first env file that can be read and returns its path.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	log.SetOutput(os.Stderr)

	if custom := strings.TrimSpace(os.Getenv(EnvFileVar)); custom != "" {
		if err := godotenv.Overload(custom); err == nil {
			log.Printf("Loaded environment from %s: %s", EnvFileVar, custom)
			return custom, nil
		}
		log.Printf("Warning: failed to load %s=%s", EnvFileVar, custom)
	}

	for _, candidate := range l.candidates() {
		if err := godotenv.Overload(candidate); err == nil {
			log.Printf("Loaded environment from: %s", candidate)
			return candidate, nil
		}
	}

	return "", fmt.Errorf("failed to load env file from %s", l.requested())
}

func (l *EnvLoader) requested() string {
	if l.value != nil {
		if requested := strings.TrimSpace(*l.value); requested != "" {
			return requested
		}
	}
	return l.defaultPath
}

func (l *EnvLoader) candidates() []string {
	requested := l.requested()
	out := []string{requested}
	if base := filepath.Base(requested); base != "" && base != requested {
		out = append(out, base)
	}
	if requested != l.defaultPath {
		out = append(out, l.defaultPath)
	}
	return out
}
