package identity

import (
	"os"
	"strings"

	"github.com/covedav/covedav/internal/logger"
)

// EnvPrefix marks a configuration value as an environment indirection:
// "{env}NAME" resolves to the value of the NAME environment variable.
const EnvPrefix = "{env}"

// ResolveIndirect substitutes an environment-indirected configuration
// value at load time. When the named variable is unset the literal value
// is kept and a warning is emitted; load never fails on indirection.
func ResolveIndirect(value string) string {
	name, ok := strings.CutPrefix(value, EnvPrefix)
	if !ok {
		return value
	}

	resolved, ok := os.LookupEnv(name)
	if !ok {
		logger.Warn("environment variable %q referenced by configuration is not set, keeping literal value", name)
		return value
	}

	return resolved
}
