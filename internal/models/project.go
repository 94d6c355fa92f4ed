package models

// Git platforms a project repository can live on.
const (
	PlatformGitHub = "github"
	PlatformGitLab = "gitlab"
)

// Project is a managed Godot project registered in the config file.
type Project struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Type          string `json:"type" yaml:"type"`
	Path          string `json:"path" yaml:"path"`
	Repository    string `json:"repository" yaml:"repository"`
	GitPlatform   string `json:"git_platform" yaml:"git_platform"`
	TestCommand   string `json:"test_command,omitempty" yaml:"test_command,omitempty"`
	BuildCommand  string `json:"build_command,omitempty" yaml:"build_command,omitempty"`
	LintCommand   string `json:"lint_command,omitempty" yaml:"lint_command,omitempty"`
	FormatCommand string `json:"format_command,omitempty" yaml:"format_command,omitempty"`
	Enabled       bool   `json:"enabled" yaml:"enabled"`
}

// SystemConfig holds the global settings stored beside the project list.
type SystemConfig struct {
	PollIntervalSeconds int `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	Phase               int `json:"phase" yaml:"phase"`
	MaxConcurrentAgents int `json:"max_concurrent_agents" yaml:"max_concurrent_agents"`
	MemoryLimitGB       int `json:"memory_limit_gb" yaml:"memory_limit_gb"`
}

// DefaultSystemConfig returns the settings used when the config file has none.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		PollIntervalSeconds: 60,
		Phase:               1,
		MaxConcurrentAgents: 1,
		MemoryLimitGB:       8,
	}
}
