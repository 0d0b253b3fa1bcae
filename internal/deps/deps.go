package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external binary pawluxe shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, CheckBinary(req))
	}
	return results
}

// CheckBinary evaluates a single requirement. Available commands are
// reported with their resolved path.
func CheckBinary(req Requirement) Status {
	cmd := strings.TrimSpace(req.Command)
	status := Status{
		Name:        req.Name,
		Command:     cmd,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if cmd == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", cmd)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

// ResolveFFmpeg returns the configured ffmpeg command, defaulting to "ffmpeg".
func ResolveFFmpeg(configured string) string {
	if cmd := strings.TrimSpace(configured); cmd != "" {
		return cmd
	}
	return "ffmpeg"
}

// RequireFFmpeg fails when the ffmpeg binary cannot be resolved.
func RequireFFmpeg(configured string) (string, error) {
	status := CheckBinary(Requirement{Name: "FFmpeg", Command: ResolveFFmpeg(configured)})
	if !status.Available {
		return "", fmt.Errorf("ffmpeg unavailable: %s", status.Detail)
	}
	return status.Command, nil
}
