package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/dontdude/coderoom/internal/domain"
)

const (
	workDir = "/tmp"

	defaultCompileTimeout = 10 * time.Second
	defaultRunTimeout     = 3 * time.Second
	maxCompileTimeout     = 30 * time.Second
	maxRunTimeout         = 15 * time.Second

	defaultMemory  = 256 * 1024 * 1024
	maxMemory      = 512 * 1024 * 1024
	pidsLimit      = 64
	nanoCPUs       = 1_000_000_000
	maxOutputBytes = 64 * 1024
)

// ErrUnknownRuntime is returned for a language/version pair the sandbox cannot run.
var ErrUnknownRuntime = errors.New("runtime is unknown")

// Client runs execution requests in throwaway Docker containers.
type Client struct {
	cli *client.Client
	// pulled records images already pulled by this process.
	pulled sync.Map
}

var _ domain.Sandbox = (*Client)(nil)

// NewClient connects to the Docker daemon from the environment and pings it.
func NewClient(ctx context.Context) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to connect to docker daemon: %w", err)
	}

	slog.Info("Docker Client initialized successfully")
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) Supports(language string) bool {
	_, ok := lookup(language, "")
	return ok
}

// Run copies the request's first file into a fresh container, compiles it if
// the language needs that, and runs it. A failed compile returns a response
// without a run phase. The container is always removed.
func (c *Client) Run(ctx context.Context, req domain.ServiceRequest) (*domain.ServiceResponse, error) {
	rt, ok := lookup(req.Language, req.Version)
	if !ok {
		return nil, fmt.Errorf("%s-%s %w", req.Language, req.Version, ErrUnknownRuntime)
	}

	if err := c.ensureImage(ctx, rt.image); err != nil {
		return nil, err
	}

	containerID, err := c.startContainer(ctx, rt, memoryLimit(req))
	if err != nil {
		return nil, err
	}
	defer c.remove(containerID)

	file := rt.fileName(req.Files)
	var content string
	if len(req.Files) > 0 {
		content = req.Files[0].Content
	}
	archive, err := sourceArchive(file, content)
	if err != nil {
		return nil, err
	}
	if err := c.cli.CopyToContainer(ctx, containerID, workDir, archive, container.CopyToContainerOptions{}); err != nil {
		return nil, fmt.Errorf("failed to copy source into container: %w", err)
	}

	resp := &domain.ServiceResponse{Language: rt.language, Version: rt.version}

	if rt.compile != nil {
		timeout := clampTimeout(req.CompileTimeout, defaultCompileTimeout, maxCompileTimeout)
		phase, err := c.exec(ctx, containerID, rt.compile(file), "", timeout)
		if err != nil {
			return nil, fmt.Errorf("compile phase failed: %w", err)
		}
		resp.Compile = phase
		if phase.Code == nil || *phase.Code != 0 {
			slog.Debug("Compilation failed, skipping run", "language", rt.language, "containerID", containerID)
			return resp, nil
		}
	}

	timeout := clampTimeout(req.RunTimeout, defaultRunTimeout, maxRunTimeout)
	phase, err := c.exec(ctx, containerID, rt.run(file), req.Stdin, timeout)
	if err != nil {
		return nil, fmt.Errorf("run phase failed: %w", err)
	}
	resp.Run = phase
	return resp, nil
}

// ensureImage pulls an image once per process.
func (c *Client) ensureImage(ctx context.Context, ref string) error {
	if _, ok := c.pulled.Load(ref); ok {
		return nil
	}

	slog.Info("Pulling image", "image", ref)
	reader, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}

	c.pulled.Store(ref, struct{}{})
	return nil
}

// startContainer creates an idle container with no network and bounded
// memory, processes and CPU. Work happens through exec.
func (c *Client) startContainer(ctx context.Context, rt runtime, memory int64) (string, error) {
	pids := int64(pidsLimit)
	created, err := c.cli.ContainerCreate(ctx, &container.Config{
		Image:           rt.image,
		Cmd:             []string{"tail", "-f", "/dev/null"},
		WorkingDir:      workDir,
		User:            "nobody",
		Env:             []string{"HOME=" + workDir, "GOCACHE=" + workDir + "/.cache"},
		NetworkDisabled: true,
	}, &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    memory,
			PidsLimit: &pids,
			NanoCPUs:  nanoCPUs,
		},
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := c.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		c.remove(created.ID)
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	slog.Debug("Container started", "containerID", created.ID, "image", rt.image)
	return created.ID, nil
}

// remove force-removes a container, killing anything still running in it.
func (c *Client) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		slog.Error("Failed to remove container", "containerID", containerID, "error", err)
	}
}

// exec runs cmd in the container and collects its output. When timeout
// elapses first the phase is reported as killed with SIGKILL.
func (c *Client) exec(ctx context.Context, containerID string, cmd []string, stdin string, timeout time.Duration) (*domain.ServicePhase, error) {
	created, err := c.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workDir,
		AttachStdin:  stdin != "",
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := c.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	if stdin != "" {
		go func() {
			if _, err := io.WriteString(attach.Conn, stdin); err != nil {
				slog.Debug("Failed to write stdin", "error", err)
			}
			attach.CloseWrite()
		}()
	}

	stdout := newCappedBuffer(maxOutputBytes)
	stderr := newCappedBuffer(maxOutputBytes)
	combined := newCappedBuffer(maxOutputBytes)

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(io.MultiWriter(stdout, combined), io.MultiWriter(stderr, combined), attach.Reader)
		done <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	killed := false
	select {
	case err := <-done:
		if err != nil {
			slog.Warn("Exec output stream ended with error", "error", err)
		}
	case <-timer.C:
		killed = true
		attach.Close()
		<-done
	case <-ctx.Done():
		attach.Close()
		<-done
		return nil, ctx.Err()
	}
	elapsed := float64(time.Since(start).Milliseconds())

	out, errOut := stdout.String(), stderr.String()
	phase := &domain.ServicePhase{
		Stdout: &out,
		Stderr: &errOut,
		Output: combined.String(),
		Time:   &elapsed,
	}
	if stdout.truncated || stderr.truncated {
		slog.Warn("Exec output truncated", "containerID", containerID, "limit", maxOutputBytes)
	}

	if killed {
		sig := "SIGKILL"
		phase.Signal = &sig
		return phase, nil
	}

	code, err := c.exitCode(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	if sig, ok := signalFromExit(code); ok {
		phase.Signal = &sig
		return phase, nil
	}
	phase.Code = &code
	return phase, nil
}

// exitCode waits for the exec to be reported as finished.
func (c *Client) exitCode(ctx context.Context, execID string) (int, error) {
	for {
		inspect, err := c.cli.ContainerExecInspect(ctx, execID)
		if err != nil {
			return 0, fmt.Errorf("failed to inspect exec: %w", err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

var exitSignals = map[int]string{
	128 + 6:  "SIGABRT",
	128 + 9:  "SIGKILL",
	128 + 11: "SIGSEGV",
	128 + 15: "SIGTERM",
}

// signalFromExit maps a shell-style 128+n exit status to the signal name.
func signalFromExit(code int) (string, bool) {
	sig, ok := exitSignals[code]
	return sig, ok
}

// clampTimeout converts a millisecond limit from the request, applying a
// default for non-positive values and an upper bound.
func clampTimeout(millis int, def, max time.Duration) time.Duration {
	if millis <= 0 {
		return def
	}
	d := time.Duration(millis) * time.Millisecond
	if d > max {
		return max
	}
	return d
}

// memoryLimit picks the container memory limit from the larger of the
// request's compile and run limits. -1 means the default.
func memoryLimit(req domain.ServiceRequest) int64 {
	limit := req.CompileMemoryLimit
	if req.RunMemoryLimit > limit {
		limit = req.RunMemoryLimit
	}
	switch {
	case limit <= 0:
		return defaultMemory
	case limit > maxMemory:
		return maxMemory
	default:
		return limit
	}
}
