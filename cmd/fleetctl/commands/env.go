package commands

import "os"

// configPath resolves the config.json path, following the teacher's
// environment-variable-driven idiom (cmd/surp/commands/env.go's SURP_IF /
// SURP_GROUP) adapted to a single override.
func configPath() string {
	if p := os.Getenv("FLEETCTL_CONFIG"); p != "" {
		return p
	}
	return "config.json"
}
