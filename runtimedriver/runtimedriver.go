// Package runtimedriver builds and runs the external container
// runtime's CLI (docker-shaped) and parses its
// textual output back into structured status.
package runtimedriver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"
)

// Driver shells out to the runtime binary (normally "docker") the way
// the runtime driver shells out to its helper binary: one
// exec.Cmd per call, stdio and working directory set explicitly,
// nothing held open across calls.
type Driver struct {
	Bin     string   // defaults to "docker"
	Options []string // global flags prepended to every invocation
	Log     zerolog.Logger

	mu     sync.Mutex
	images map[string]*ImageInfo
}

// New returns a Driver ready to use; bin defaults to "docker" when empty.
func New(bin string, options []string, log zerolog.Logger) *Driver {
	if bin == "" {
		bin = "docker"
	}
	return &Driver{Bin: bin, Options: options, Log: log, images: map[string]*ImageInfo{}}
}

func (d *Driver) argv(args ...string) []string {
	out := append([]string{}, d.Options...)
	return append(out, args...)
}

func (d *Driver) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.Bin, d.argv(args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	d.Log.Debug().Strs("argv", cmd.Args).Msg("running runtime command")
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("%s %s: %w: %s", d.Bin, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// RunOptions carries the fields of a Mesos launch spec's container
// needed to build a `docker run` invocation.
type RunOptions struct {
	Image   string
	Options []string // caller-chosen options, e.g. volume mounts, network mode
	Command []string
	Env     []EnvPair
	CPUs    float64 // 0 means unset
	Mems    int64   // MiB, 0 means unset
	Ports   []int   // Mesos-allocated host ports, position-paired with image's exposed ports
	Name    string  // passed as --name when set
}

// EnvPair preserves launch-spec environment ordering; plain maps would
// not, since argv/env determinism matters for testability.
type EnvPair struct{ Key, Value string }

// Run starts a new container attached to stdout/stderr (stdin
// /dev/null) and returns the started command without waiting for it
// to exit, matching the original's
// `subprocess.Popen(runner_argv, stdin=devnull, stdout=o, stderr=e)`:
// the sandbox's stdout/stderr files are the container's log, and the
// runtime id is discovered separately through the --cidfile the
// caller places in Options, since attached stdout now carries the
// container's own output rather than a parseable container id.
//
// Always prepends --sig-proxy and --rm ahead of caller options so that
// signals reach the container process and the runtime forgets a
// terminated container's metadata automatically, matching the
// original's supplemented defaults.
func (d *Driver) Run(ctx context.Context, opts RunOptions, stdout, stderr *os.File) (*exec.Cmd, error) {
	args := []string{"run", "--sig-proxy", "--rm"}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	args = append(args, opts.Options...)

	if len(opts.Ports) != 0 {
		inner, err := d.InnerPorts(ctx, opts.Image)
		if err != nil {
			return nil, err
		}
		pairs := pairPorts(opts.Ports, inner)
		for _, p := range pairs {
			args = append(args, "-p", fmt.Sprintf("%d:%d", p.host, p.container))
		}
	}

	if opts.CPUs != 0 {
		// -c takes CPU shares, 1024 per core.
		args = append(args, "-c", strconv.Itoa(int(opts.CPUs*1024+0.5)))
	}
	if opts.Mems != 0 {
		args = append(args, "-m", fmt.Sprintf("%dm", opts.Mems))
	}
	for _, e := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", e.Key, e.Value))
	}
	args = append(args, opts.Image)
	args = append(args, opts.Command...)

	devnull, err := os.Open(os.DevNull)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}

	cmd := exec.CommandContext(ctx, d.Bin, d.argv(args...)...)
	cmd.Stdin = devnull
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	d.Log.Debug().Strs("argv", cmd.Args).Msg("running runtime command")
	if err := cmd.Start(); err != nil {
		devnull.Close()
		return nil, fmt.Errorf("%s run: %w", d.Bin, err)
	}
	return cmd, nil
}

type portPair struct{ host, container int }

// pairPorts zips allocated host ports against the image's declared
// container ports by position. Surplus image ports with no allocated
// host port are dropped (with a warning, as the original does);
// surplus allocated ports with no declared image port bind to
// themselves, matching `itertools.izip_longest`'s None-fill semantics
// translated into Go's zero-value-aware loop below.
func pairPorts(allocated []int, declared []int) []portPair {
	n := len(allocated)
	if len(declared) > n {
		n = len(declared)
	}
	pairs := make([]portPair, 0, n)
	for i := 0; i < n; i++ {
		var host, container int
		if i < len(allocated) {
			host = allocated[i]
		}
		if i < len(declared) {
			container = declared[i]
		}
		if host == 0 {
			// more image ports than allocated host ports: original logs a
			// warning and stops pairing entirely at this point.
			break
		}
		if container == 0 {
			container = host
		}
		pairs = append(pairs, portPair{host: host, container: container})
	}
	return pairs
}

// RunRaw runs an arbitrary runtime subcommand and returns its
// trimmed stdout, for callers (e.g. the `containers` verb's `ps`
// listing) that don't fit the other typed helpers.
func (d *Driver) RunRaw(ctx context.Context, args ...string) (string, error) {
	return d.run(ctx, args...)
}

// Stop sends a graceful stop with a 2 second grace period, matching
// the original's `docker stop -t=2`.
func (d *Driver) Stop(ctx context.Context, ident string) error {
	_, err := d.run(ctx, "stop", "-t=2", ident)
	return err
}

// Rm removes a stopped container's metadata.
func (d *Driver) Rm(ctx context.Context, ident string) error {
	_, err := d.run(ctx, "rm", ident)
	return err
}

// Wait blocks until the container exits and returns its raw wait
// output (interpreted by ReadWaitCode).
func (d *Driver) Wait(ctx context.Context, ident string) (string, error) {
	return d.run(ctx, "wait", ident)
}

// ReadWaitCode normalizes the textual result of `docker wait` into a
// POSIX-style exit code: negative values are translated via the
// 128+signal convention, then reduced modulo 256. Unparseable output
// yields 111, matching the original's fallback (the resolved
// Open Question).
func ReadWaitCode(data string) int {
	code, err := strconv.Atoi(strings.TrimSpace(data))
	if err != nil {
		return 111
	}
	if code < 0 {
		code = 128 + -code
	}
	return code % 256
}

// Status is a point-in-time snapshot of a container as seen by the runtime.
type Status struct {
	CID  string
	Pid  int
	Exit *int // nil while running
}

// Probe runs `docker inspect` once and parses its Go-template output.
func (d *Driver) Probe(ctx context.Context, ident string) (*Status, error) {
	out, err := d.run(ctx, "inspect", "--format={{.ID}} {{.State.Pid}} {{.State.ExitCode}}", ident)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(out)
	if len(fields) != 3 {
		return nil, fmt.Errorf("unexpected inspect output: %q", out)
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("malformed pid in inspect output: %w", err)
	}
	s := &Status{CID: fields[0], Pid: pid}
	if pid == 0 {
		code, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("malformed exit code in inspect output: %w", err)
		}
		s.Exit = &code
	}
	return s, nil
}

// Exists is Probe with non-existence (exit status 1 from the runtime
// CLI) folded into a nil, nil result rather than an error.
func (d *Driver) Exists(ctx context.Context, ident string) (*Status, error) {
	s, err := d.Probe(ctx, ident)
	if err == nil {
		return s, nil
	}
	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) && exitErr.ExitCode() == 1 {
		return nil, nil
	}
	return nil, err
}

func asExitError(err error, target **exec.ExitError) bool {
	for err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			*target = ee
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// AwaitExists polls Exists with the backoff schedule the original
// uses (10 sleeps of 50ms, then one last check) before giving up,
// using cenkalti/backoff's constant policy with a bounded retry count
// instead of a hand-rolled sleep loop.
func (d *Driver) AwaitExists(ctx context.Context, ident string) (*Status, error) {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 10)
	var result *Status
	op := func() error {
		s, err := d.Exists(ctx, ident)
		if err != nil {
			return backoff.Permanent(err)
		}
		if s == nil {
			return fmt.Errorf("container %s not ready yet", ident)
		}
		result = s
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		s, perr := d.Exists(ctx, ident)
		if perr == nil && s != nil {
			return s, nil
		}
		d.Log.Warn().Str("container", ident).Msg("container not ready after bounded poll")
		return nil, &AwaitTimeoutError{ident}
	}
	return result, nil
}

// AwaitTimeoutError is returned by AwaitExists when the container
// never reports itself ready within the polling budget.
type AwaitTimeoutError struct{ Ident string }

func (e *AwaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s", e.Ident)
}

// ImageInfo is the subset of `docker inspect <image>` this adapter cares about.
type ImageInfo struct {
	Config struct {
		ExposedPorts map[string]struct{} `json:"ExposedPorts"`
		PortSpecs    []string            `json:"PortSpecs"`
	} `json:"Config"`
}

// PullOnce pulls the image if it has not already been inspected this
// process, matching the original's `pull_once` cache-or-fetch pattern.
func (d *Driver) PullOnce(ctx context.Context, image string) error {
	d.mu.Lock()
	_, cached := d.images[image]
	d.mu.Unlock()
	if cached {
		return nil
	}
	if _, err := d.run(ctx, "pull", image); err != nil {
		return err
	}
	_, err := d.refreshImageInfo(ctx, image)
	return err
}

// Image returns cached metadata for image, pulling and inspecting
// it on first use.
func (d *Driver) Image(ctx context.Context, image string) (*ImageInfo, error) {
	d.mu.Lock()
	info, ok := d.images[image]
	d.mu.Unlock()
	if ok {
		return info, nil
	}
	if err := d.PullOnce(ctx, image); err != nil {
		return nil, err
	}
	d.mu.Lock()
	info = d.images[image]
	d.mu.Unlock()
	return info, nil
}

func (d *Driver) refreshImageInfo(ctx context.Context, image string) (*ImageInfo, error) {
	out, err := d.run(ctx, "inspect", image)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image %s: %w", image, err)
	}
	var parsed []ImageInfo
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse image inspect output for %s: %w", image, err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("empty image inspect output for %s", image)
	}
	info := &parsed[0]
	d.mu.Lock()
	d.images[image] = info
	d.mu.Unlock()
	return info, nil
}

// InnerPorts returns the image's declared container ports, sorted
// ascending, supporting both the modern ExposedPorts map shape and the
// legacy PortSpecs list shape (original's `inner_ports`).
func (d *Driver) InnerPorts(ctx context.Context, image string) ([]int, error) {
	info, err := d.Image(ctx, image)
	if err != nil {
		return nil, err
	}
	var ports []int
	if len(info.Config.ExposedPorts) > 0 {
		for k := range info.Config.ExposedPorts {
			p := k
			if i := strings.IndexByte(p, '/'); i >= 0 {
				p = p[:i]
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				continue
			}
			ports = append(ports, n)
		}
	} else if len(info.Config.PortSpecs) > 0 {
		for _, spec := range info.Config.PortSpecs {
			fields := strings.Split(spec, ":")
			n, err := strconv.Atoi(fields[len(fields)-1])
			if err != nil {
				continue
			}
			ports = append(ports, n)
		}
	}
	sort.Ints(ports)
	return ports, nil
}

// ImageToken joins an optional registry index and account onto an
// image name, matching the original's `image_token`.
func ImageToken(name, account, index string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{index, account, name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}

// MatchingImageForHost derives a distro:release image tag from the
// host's /etc/os-release when distro/release are not already known,
// matching the original's `matching_image_for_host`
// (image default resolution).
func MatchingImageForHost(distro, release string) (string, error) {
	if distro != "" && release != "" {
		return ImageToken(fmt.Sprintf("%s:%s", distro, release), "", ""), nil
	}
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return "", fmt.Errorf("failed to read /etc/os-release: %w", err)
	}
	fields := parseOSRelease(string(data))
	if distro == "" {
		distro = strings.ToLower(fields["ID"])
	}
	if release == "" {
		release = strings.ToLower(fields["VERSION_ID"])
	}
	if distro == "" || release == "" {
		return "", fmt.Errorf("could not determine distro/release from /etc/os-release")
	}
	return fmt.Sprintf("%s:%s", distro, release), nil
}

func parseOSRelease(data string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[k] = strings.Trim(v, `"'`)
	}
	return out
}
