// Package docker exposes a read-mostly view of the local Docker engine by
// wrapping the docker CLI.
package docker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/config"
	"mcp-toolserver/pkg/errors"
	"mcp-toolserver/pkg/handlers"
	"mcp-toolserver/pkg/resources"
	"mcp-toolserver/pkg/tools"
)

const defaultLogTail = 100

// Set implements handlers.Set and handlers.Checker
type Set struct {
	cfg    config.DockerConfig
	runner handlers.Runner
}

// New creates the docker handler set. A nil runner uses os/exec.
func New(cfg config.DockerConfig, runner handlers.Runner) *Set {
	if runner == nil {
		runner = handlers.ExecRunner{}
	}
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	if cfg.InspectTimeout <= 0 {
		cfg.InspectTimeout = 30 * time.Second
	}
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = 300 * time.Second
	}
	return &Set{cfg: cfg, runner: runner}
}

// Name implements handlers.Set
func (s *Set) Name() string { return config.HandlerDocker }

// Check verifies that the CLI is installed and the daemon answers
func (s *Set) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.InspectTimeout)
	defer cancel()

	if _, err := s.runner.Run(ctx, s.cfg.Binary, "version", "--format", "{{.Server.Version}}"); err != nil {
		return errors.NewDependencyError("docker", err)
	}
	return nil
}

func (s *Set) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.runner.Run(ctx, s.cfg.Binary, args...)
}

type listContainersInput struct {
	All bool `json:"all,omitempty" jsonschema:"include stopped containers"`
}

type inspectInput struct {
	ID string `json:"id" jsonschema:"container or image id or name"`
}

type logsInput struct {
	ID   string `json:"id" jsonschema:"container id or name"`
	Tail int    `json:"tail,omitempty" jsonschema:"number of lines from the end of the log"`
}

type pullInput struct {
	Image string `json:"image" jsonschema:"image reference such as alpine:3.20"`
}

// PullResult is returned by docker_pull_image
type PullResult struct {
	Image  string `json:"image"`
	Output string `json:"output"`
}

// Tools implements handlers.Set
func (s *Set) Tools() []tools.Tool {
	return []tools.Tool{
		tools.MustTypedTool("docker_list_containers", "Lists containers", s.listContainers),
		tools.MustTypedTool("docker_inspect", "Returns low-level information on a container or image", s.inspect),
		tools.MustTypedTool("docker_list_images", "Lists local images", s.listImages),
		tools.MustTypedTool("docker_container_logs", "Fetches the tail of a container's logs", s.containerLogs),
		tools.MustTypedTool("docker_pull_image", "Pulls an image from its registry", s.pullImage),
	}
}

func (s *Set) listContainers(ctx context.Context, in listContainersInput) ([]map[string]any, error) {
	args := []string{"ps", "--no-trunc", "--format", "{{json .}}"}
	if in.All {
		args = append(args, "--all")
	}
	out, err := s.run(ctx, s.cfg.InspectTimeout, args...)
	if err != nil {
		return nil, err
	}
	return parseJSONLines(out)
}

func (s *Set) inspect(ctx context.Context, in inspectInput) (any, error) {
	if err := handlers.CheckArgument("id", in.ID); err != nil {
		return nil, err
	}
	out, err := s.run(ctx, s.cfg.InspectTimeout, "inspect", in.ID)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(out, &v); err != nil {
		return nil, fmt.Errorf("decode docker inspect output: %w", err)
	}
	return v, nil
}

func (s *Set) listImages(ctx context.Context, _ struct{}) ([]map[string]any, error) {
	out, err := s.run(ctx, s.cfg.InspectTimeout, "images", "--format", "{{json .}}")
	if err != nil {
		return nil, err
	}
	return parseJSONLines(out)
}

func (s *Set) containerLogs(ctx context.Context, in logsInput) (string, error) {
	if err := handlers.CheckArgument("id", in.ID); err != nil {
		return "", err
	}
	tail := in.Tail
	if tail <= 0 {
		tail = defaultLogTail
	}
	out, err := s.run(ctx, s.cfg.InspectTimeout, "logs", "--tail", strconv.Itoa(tail), in.ID)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (s *Set) pullImage(ctx context.Context, in pullInput) (PullResult, error) {
	if err := handlers.CheckArgument("image", in.Image); err != nil {
		return PullResult{}, err
	}
	out, err := s.run(ctx, s.cfg.PullTimeout, "pull", "--quiet", in.Image)
	if err != nil {
		return PullResult{}, err
	}
	return PullResult{Image: in.Image, Output: string(bytes.TrimSpace(out))}, nil
}

// Resources implements handlers.Set
func (s *Set) Resources() []resources.Resource {
	return []resources.Resource{{
		Descriptor: models.ResourceDescriptor{
			Name:        "docker_status",
			URI:         config.ResourceURI("docker/status"),
			MimeType:    config.MimeTypeJSON,
			Description: "Output of docker info",
		},
		Provider: func(ctx context.Context) (string, error) {
			out, err := s.run(ctx, s.cfg.InspectTimeout, "info", "--format", "{{json .}}")
			if err != nil {
				return "", err
			}
			return string(bytes.TrimSpace(out)), nil
		},
	}}
}

// parseJSONLines decodes the one-object-per-line output of --format '{{json .}}'
func parseJSONLines(out []byte) ([]map[string]any, error) {
	rows := []map[string]any{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("decode docker output: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}
