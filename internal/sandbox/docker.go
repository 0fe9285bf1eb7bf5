package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const MiB int64 = 1024 * 1024

// DockerSandbox runs the grading image via the Docker daemon. One
// container is created per Run call and force-removed afterwards.
type DockerSandbox struct {
	cli    *client.Client
	logger *slog.Logger

	image           string
	platform        *ocispec.Platform
	submissionMount string
	outputMount     string
	entryCmd        []string
	memoryBytes     int64
}

type DockerOpts struct {
	Image           string
	Platform        string // e.g. "linux/amd64", empty for daemon default
	SubmissionMount string
	OutputMount     string
	EntryCmd        []string
	MemoryMiB       int64
}

func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

func NewDockerSandbox(cli *client.Client, logger *slog.Logger, opts DockerOpts) (*DockerSandbox, error) {
	platform, err := parsePlatform(opts.Platform)
	if err != nil {
		return nil, err
	}
	return &DockerSandbox{
		cli:             cli,
		logger:          logger,
		image:           opts.Image,
		platform:        platform,
		submissionMount: opts.SubmissionMount,
		outputMount:     opts.OutputMount,
		entryCmd:        opts.EntryCmd,
		memoryBytes:     opts.MemoryMiB * MiB,
	}, nil
}

func parsePlatform(s string) (*ocispec.Platform, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid platform %q, expected os/arch", s)
	}
	return &ocispec.Platform{OS: parts[0], Architecture: parts[1]}, nil
}

// Run implements Sandbox.
func (d *DockerSandbox) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	cfg := &container.Config{
		Image: d.image,
		Cmd:   strslice.StrSlice(d.entryCmd),
	}

	hostCfg := &container.HostConfig{
		Binds: []string{
			spec.SubmissionDir + ":" + d.submissionMount + ":ro",
			spec.OutputDir + ":" + d.outputMount,
		},
		NetworkMode: "none",
	}
	if d.memoryBytes > 0 {
		hostCfg.Resources = container.Resources{Memory: d.memoryBytes}
	}

	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, d.platform, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container for %s: %w", spec.SubmissionID, err)
	}
	defer d.remove(created.ID)

	startedAt := time.Now()
	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container for %s: %w", spec.SubmissionID, err)
	}

	res := &RunResult{}
	statusCh, errCh := d.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case waitErr := <-errCh:
		res.WallMillis = time.Since(startedAt).Milliseconds()
		if ctx.Err() != nil {
			res.TimedOut = true
			d.collectLogs(created.ID, res)
			return res, fmt.Errorf("execution of %s timed out: %w", spec.SubmissionID, ctx.Err())
		}
		return nil, fmt.Errorf("failed to wait for container of %s: %w", spec.SubmissionID, waitErr)
	case status := <-statusCh:
		res.WallMillis = time.Since(startedAt).Milliseconds()
		res.ExitCode = status.StatusCode
		if status.Error != nil {
			return nil, fmt.Errorf("container of %s failed: %s", spec.SubmissionID, status.Error.Message)
		}
	}

	d.collectLogs(created.ID, res)
	return res, nil
}

// collectLogs is best-effort; the grading output lives in the output
// directory, the container's streams are diagnostics only.
func (d *DockerSandbox) collectLogs(containerID string, res *RunResult) {
	rc, err := d.cli.ContainerLogs(context.Background(), containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		d.logger.Warn("failed to read container logs", "container_id", containerID, "err", err)
		return
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		d.logger.Warn("failed to demux container logs", "container_id", containerID, "err", err)
		return
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
}

func (d *DockerSandbox) remove(containerID string) {
	err := d.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	if err != nil {
		d.logger.Warn("failed to remove container", "container_id", containerID, "err", err)
	}
}
