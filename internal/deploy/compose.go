package deploy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// composeFile is the minimal shape of a docker-compose.yml the orchestrator
// needs to pick a build target: which service to build and which
// Dockerfile/context it uses.
type composeFile struct {
	Services yaml.Node `yaml:"services"`
}

type composeService struct {
	Build interface{} `yaml:"build"`
	Ports []string    `yaml:"ports"`
}

// composeBuildTarget is the resolved (context, dockerfile) pair for the
// service docker_compose strategy selects.
type composeBuildTarget struct {
	ServiceName string
	Context     string
	Dockerfile  string
}

// resolveComposeBuildTarget implements the documented tie-break: the first
// service (in file order) that declares a port mapping is treated as the
// application service (spec.md §4.1, Design Note #1). docker-compose.yml
// and compose.yml are both accepted, in that order.
func resolveComposeBuildTarget(workDir string) (composeBuildTarget, error) {
	path, err := findComposeFile(workDir)
	if err != nil {
		return composeBuildTarget{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return composeBuildTarget{}, fmt.Errorf("failed to read compose file: %w", err)
	}

	var cf composeFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return composeBuildTarget{}, fmt.Errorf("failed to parse compose file: %w", err)
	}

	// Services is kept as a yaml.Node so its keys stay in file order;
	// Content alternates key and value nodes.
	var name string
	var svc composeService
	for i := 0; i+1 < len(cf.Services.Content); i += 2 {
		var candidate composeService
		if err := cf.Services.Content[i+1].Decode(&candidate); err != nil {
			return composeBuildTarget{}, fmt.Errorf("failed to parse compose service: %w", err)
		}
		if len(candidate.Ports) > 0 {
			name, svc = cf.Services.Content[i].Value, candidate
			break
		}
	}
	if name == "" {
		return composeBuildTarget{}, fmt.Errorf("no service in compose file declares a port mapping")
	}

	context := "."
	dockerfile := "Dockerfile"
	switch b := svc.Build.(type) {
	case string:
		context = b
	case map[string]interface{}:
		if c, ok := b["context"].(string); ok && c != "" {
			context = c
		}
		if d, ok := b["dockerfile"].(string); ok && d != "" {
			dockerfile = d
		}
	}

	return composeBuildTarget{
		ServiceName: name,
		Context:     filepath.Join(workDir, context),
		Dockerfile:  dockerfile,
	}, nil
}

func findComposeFile(workDir string) (string, error) {
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		p := filepath.Join(workDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no docker-compose file found in %s", workDir)
}
