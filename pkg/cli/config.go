package cli

import "fmt"

// Config holds the global CLI settings
type Config struct {
	ConfigFile  string
	ProjectRoot string
	Verbosity   string
	Version     string
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		ProjectRoot: ".",
		Verbosity:   "info",
	}
}

// RunOptions are the switches of the run and plan commands
type RunOptions struct {
	DryRun         bool
	SkipValidation bool
	UseCache       bool
	FailFast       bool
	NoCleanup      bool
	Publish        bool
	Parallelism    int
	Targets        []string
}

// ExitError carries a process exit code without an extra message. It is
// returned when the command already reported what went wrong.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}
