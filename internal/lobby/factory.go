package lobby

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wardenms/warden/internal/core/props"
)

// StandardFactory builds a lobby Config directly from creation options, for
// deployments that don't register game-mode specific factories.
//
// Recognized options: name, max_members, region, is_public, and teams in the
// form "red:1:4,blue:1:4" (name:min:max).
func StandardFactory(options props.Properties) (Config, error) {
	config := Config{
		Name:       options["name"],
		Region:     options["region"],
		MaxMembers: 8,
	}
	if config.Name == "" {
		config.Name = "Lobby"
	}

	if raw, ok := options["max_members"]; ok {
		maxMembers, err := strconv.Atoi(raw)
		if err != nil || maxMembers < 1 {
			return Config{}, fmt.Errorf("invalid max_members value %q", raw)
		}
		config.MaxMembers = maxMembers
	}

	if raw, ok := options["is_public"]; ok {
		isPublic, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid is_public value %q", raw)
		}
		config.IsPublic = isPublic
	}

	if raw, ok := options["teams"]; ok && raw != "" {
		teams, err := parseTeams(raw)
		if err != nil {
			return Config{}, err
		}
		config.Teams = teams
	}

	return config, nil
}

func parseTeams(raw string) ([]TeamOptions, error) {
	var teams []TeamOptions
	for _, spec := range strings.Split(raw, ",") {
		parts := strings.Split(spec, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid team spec %q, want name:min:max", spec)
		}
		minPlayers, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid team spec %q: %v", spec, err)
		}
		maxPlayers, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid team spec %q: %v", spec, err)
		}
		teams = append(teams, TeamOptions{
			Name:       parts[0],
			MinPlayers: minPlayers,
			MaxPlayers: maxPlayers,
		})
	}
	return teams, nil
}
