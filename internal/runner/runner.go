package runner

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	img "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const gitImage = "alpine/git:latest"

// Spec describes one exercise run.
type Spec struct {
	Repository string
	Commit     string
	Patch      string
	Image      string
	Command    string
	Timeout    time.Duration
}

// Result is the outcome of the checker command. Stdout carries the JSON
// exercise report.
type Result struct {
	OK       bool   `json:"ok"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Repository) == "" {
		return fmt.Errorf("repository is required")
	}
	if strings.TrimSpace(s.Image) == "" {
		return fmt.Errorf("image is required")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// Run clones spec.Repository@spec.Commit into a docker *volume*, applies
// spec.Patch, then runs spec.Command inside spec.Image with /repo mounted
// read-write and networking disabled.
// Requires DOCKER_HOST to point to a reachable daemon (e.g., tcp://dind:2375).
func Run(ctx context.Context, spec Spec) (*Result, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	log.Println("runner: starting exercise run")
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("cannot reach docker daemon (%s): %w", os.Getenv("DOCKER_HOST"), err)
	}
	log.Println("runner: docker daemon reachable")

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	phaseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Println("runner: pulling image", spec.Image)
	if err := pullIfNeeded(phaseCtx, cli, spec.Image); err != nil {
		return nil, fmt.Errorf("pull image %s: %w", spec.Image, err)
	}

	volName := fmt.Sprintf("judge-run-%d", time.Now().UnixNano())
	if _, err := cli.VolumeCreate(phaseCtx, volume.CreateOptions{Name: volName}); err != nil {
		return nil, fmt.Errorf("volume create: %w", err)
	}
	defer func() {
		if err := cli.VolumeRemove(context.Background(), volName, true); err != nil {
			log.Printf("warn: remove volume %s: %v", volName, err)
		}
	}()

	if err := pullIfNeeded(phaseCtx, cli, gitImage); err != nil {
		return nil, fmt.Errorf("pull %s: %w", gitImage, err)
	}
	log.Println("runner: cloning", spec.Repository)
	if err := runOneShot(phaseCtx, cli, gitImage, volName,
		[]string{"clone", spec.Repository, "/repo"}, true,
	); err != nil {
		return nil, fmt.Errorf("git clone phase: %w", err)
	}
	if c := checkoutRef(spec.Commit); c != "" {
		if err := runOneShot(phaseCtx, cli, gitImage, volName,
			[]string{"-C", "/repo", "checkout", c}, true,
		); err != nil {
			return nil, fmt.Errorf("git checkout %q: %w", c, err)
		}
		log.Println("runner: checked out", c)
	}

	if strings.TrimSpace(spec.Patch) != "" {
		if err := copyBytesToVolume(phaseCtx, cli, volName, "patch.diff", []byte(spec.Patch)); err != nil {
			return nil, fmt.Errorf("copy patch: %w", err)
		}
		if err := runOneShot(phaseCtx, cli, gitImage, volName,
			[]string{"-C", "/repo", "apply", "patch.diff"}, false,
		); err != nil {
			return nil, fmt.Errorf("git apply: %w", err)
		}
		log.Println("runner: applied patch")
	}

	log.Println("runner: running checker:", spec.Command)
	res := &Result{}
	stdout, stderr, exitCode, err := runWithLogs(phaseCtx, cli, spec.Image, volName, checkerCmd(spec.Command), false, &container.Resources{
		Memory:   1 << 30, // 1 GiB
		NanoCPUs: 2e9,     // 2 CPUs
	})
	res.Stdout, res.Stderr, res.ExitCode = stdout, stderr, exitCode
	// a failing exercise usually means a non-zero exit; the report is still on stdout
	res.OK = err == nil && exitCode == 0
	if err != nil {
		return res, fmt.Errorf("checker run: %w", err)
	}
	return res, nil
}

// --- helpers ---

func pullIfNeeded(ctx context.Context, cli *client.Client, image string) error {
	reader, err := cli.ImagePull(ctx, imageRef(image), img.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader) // eat the progress stream
	return nil
}

func imageRef(img string) string {
	// allow "python:3.12", "alpine/git:latest", etc.
	if strings.Contains(img, "/") || strings.Contains(img, ":") {
		return img
	}
	return "docker.io/library/" + img + ":latest"
}

// checkoutRef returns the ref to check out, or "" to stay on the default branch.
func checkoutRef(commit string) string {
	commit = strings.TrimSpace(commit)
	if commit == "" || commit == "HEAD" {
		return ""
	}
	return commit
}

func checkerCmd(command string) []string {
	return []string{"sh", "-c", fmt.Sprintf("cd /repo && %s", command)}
}

// runOneShot runs a short-lived container with /repo mounted from a volume
// and fails on a non-zero exit.
func runOneShot(ctx context.Context, cli *client.Client, image, volName string, cmd []string, netEnabled bool) error {
	stdout, stderr, exitCode, err := runWithLogs(ctx, cli, image, volName, cmd, netEnabled, nil)
	if err != nil {
		// surface logs on error for easier debugging
		return fmt.Errorf("%s failed (exit=%d)\nstdout:\n%s\nstderr:\n%s\nerr: %w",
			strings.Join(cmd, " "), exitCode, stdout, stderr, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s exit code=%d\nstdout:\n%s\nstderr:\n%s",
			strings.Join(cmd, " "), exitCode, stdout, stderr)
	}
	return nil
}

// runWithLogs creates a container, attaches /repo volume, runs cmd, collects logs, cleans up.
func runWithLogs(ctx context.Context, cli *client.Client, image, volName string, cmd []string, netEnabled bool, res *container.Resources) (stdout, stderr string, exitCode int, err error) {
	networkMode := container.NetworkMode("none")
	if netEnabled {
		networkMode = ""
	}
	hostCfg := &container.HostConfig{
		NetworkMode: networkMode,
		Mounts: []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: volName,
			Target: "/repo",
		}},
	}
	if res != nil {
		hostCfg.Resources = *res
	}

	create, err := cli.ContainerCreate(ctx, &container.Config{
		Image: image,
		Cmd:   cmd,
		Tty:   false,
	}, hostCfg, nil, nil, "")
	if err != nil {
		return "", "", 0, fmt.Errorf("create: %w", err)
	}
	cid := create.ID
	defer func() {
		timeout := 5
		_ = cli.ContainerStop(context.Background(), cid, container.StopOptions{Timeout: &timeout})
		_ = cli.ContainerRemove(context.Background(), cid, container.RemoveOptions{Force: true})
	}()

	if err := cli.ContainerStart(ctx, cid, container.StartOptions{}); err != nil {
		return "", "", 0, fmt.Errorf("start: %w", err)
	}

	// Wait for exit
	statusCh, errCh := cli.ContainerWait(ctx, cid, container.WaitConditionNotRunning)
	select {
	case err = <-errCh:
		if err != nil {
			return "", "", 0, fmt.Errorf("wait: %w", err)
		}
	case st := <-statusCh:
		exitCode = int(st.StatusCode)
	}

	stdout, stderr, err = collectLogs(ctx, cli, cid)
	if err != nil {
		log.Printf("runner: logs for %s: %v", cid, err)
	}
	return stdout, stderr, exitCode, nil
}

// collectLogs demultiplexes the container log stream. If the stream is not
// multiplexed everything lands in stdout.
func collectLogs(ctx context.Context, cli *client.Client, cid string) (string, string, error) {
	logs, err := cli.ContainerLogs(ctx, cid, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer logs.Close()

	raw, err := io.ReadAll(logs)
	if err != nil {
		return "", "", err
	}
	return demux(raw)
}

func demux(raw []byte) (string, string, error) {
	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, bytes.NewReader(raw)); err != nil {
		return string(raw), "", nil
	}
	return outBuf.String(), errBuf.String(), nil
}

// copyBytesToVolume writes data to destPath under /repo in the volume using a
// helper container and the archive upload API.
func copyBytesToVolume(ctx context.Context, cli *client.Client, volName, destPath string, data []byte) error {
	create, err := cli.ContainerCreate(ctx, &container.Config{
		Image:      gitImage,
		Entrypoint: []string{"sleep"},
		Cmd:        []string{"60"},
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode("none"),
		Mounts: []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: volName,
			Target: "/repo",
		}},
	}, nil, nil, "")
	if err != nil {
		return fmt.Errorf("copy helper create: %w", err)
	}
	cid := create.ID
	defer func() {
		timeout := 2
		_ = cli.ContainerStop(context.Background(), cid, container.StopOptions{Timeout: &timeout})
		_ = cli.ContainerRemove(context.Background(), cid, container.RemoveOptions{Force: true})
	}()

	if err := cli.ContainerStart(ctx, cid, container.StartOptions{}); err != nil {
		return fmt.Errorf("copy helper start: %w", err)
	}

	archive, err := tarFile(destPath, data)
	if err != nil {
		return err
	}
	if err := cli.CopyToContainer(ctx, cid, "/repo", archive, container.CopyToContainerOptions{AllowOverwriteDirWithFile: true}); err != nil {
		return fmt.Errorf("copy to container: %w", err)
	}
	log.Printf("runner: copied %s (%d bytes) into %s", destPath, len(data), volName)
	return nil
}

func tarFile(name string, data []byte) (io.Reader, error) {
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)
	hdr := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}
