// Package main provides a switch plugin that runs one shell command per power state.
//
// The command for a state is taken from the request config, keyed by state
// name ("On", "Off"); lookup ignores case. The command runs with sh -c and
// sees the request as MUDRA_STATE, MUDRA_COUNT and MUDRA_DEVICE_ID.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action   string            `json:"action"`
	DeviceID string            `json:"device_id,omitempty"`
	State    string            `json:"state"`
	Count    int               `json:"count"`
	Config   map[string]string `json:"config,omitempty"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const actionSetPowerState = "setPowerState"

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != actionSetPowerState {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	command, ok := lookupCommand(req.Config, req.State)
	if !ok {
		writeErrorResponse(fmt.Sprintf("no command configured for state %q", req.State))
		return
	}

	output, err := runCommand(command, req)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("state %s failed: %v", req.State, err))
		return
	}

	writeSuccessResponse(output)
}

// lookupCommand finds the command for state, ignoring case.
func lookupCommand(config map[string]string, state string) (string, bool) {
	if cmd, ok := config[state]; ok && cmd != "" {
		return cmd, true
	}
	for key, cmd := range config {
		if strings.EqualFold(key, state) && cmd != "" {
			return cmd, true
		}
	}
	return "", false
}

// runCommand executes command with sh and returns its combined output.
func runCommand(command string, req Request) (string, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Env = append(os.Environ(),
		"MUDRA_STATE="+req.State,
		"MUDRA_COUNT="+strconv.Itoa(req.Count),
		"MUDRA_DEVICE_ID="+req.DeviceID,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response carrying the command output.
func writeSuccessResponse(output string) {
	resp := Response{
		Success: true,
	}
	if output != "" {
		data, _ := json.Marshal(map[string]string{"output": output})
		resp.Data = data
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
