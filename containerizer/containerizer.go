// Package containerizer implements the launch/wait/destroy/usage
// /observe/containers/recover/update operations against an external
// container runtime, grounded operation-by-operation on
// the reference implementation's `Docker` containerizer.
package containerizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/deimos-go/deimos/cgroup"
	"github.com/deimos-go/deimos/config"
	"github.com/deimos-go/deimos/filelock"
	"github.com/deimos-go/deimos/launchspec"
	"github.com/deimos-go/deimos/runtimedriver"
	"github.com/deimos-go/deimos/sig"
	"github.com/deimos-go/deimos/state"
	"github.com/deimos-go/deimos/uristage"
)

// mesosEssentialEnv names the agent-provided variables forwarded into
// a launched container's embedded executor, matching the original's
// MESOS_ESSENTIAL_ENV.
var mesosEssentialEnv = []string{
	"MESOS_SLAVE_ID", "MESOS_SLAVE_PID", "MESOS_FRAMEWORK_ID", "MESOS_EXECUTOR_ID",
}

// Containerizer ties the state directory, runtime driver, URI stager
// and cgroup reader together into the verb surface the CLI dispatches
// to, mirroring the original's `Docker` class.
type Containerizer struct {
	StateRoot         string
	Workdir           string
	SharedDir         string
	OptimisticUnpack  bool
	Hooks             config.Hooks
	ContainerSettings config.Containers
	IndexSettings     config.DockerIndex

	Driver *runtimedriver.Driver
	Stager uristage.Stager
	Log    zerolog.Logger
}

func (c *Containerizer) workdir() string {
	if c.Workdir != "" {
		return c.Workdir
	}
	return "/tmp/mesos-sandbox"
}

func (c *Containerizer) sharedDir() string {
	if c.SharedDir != "" {
		return c.SharedDir
	}
	return "fs"
}

// Launch starts a new container for the given launch request. When
// fork is true, the current process hands supervision off to a
// detached child and returns to the caller as soon as the runtime has
// accepted the run — Go offers no safe analogue of a raw fork(2) once
// goroutines exist, so REDESIGN: this adapter re-execs itself with a
// hidden supervisor subcommand instead of forking (see Supervise).
func (c *Containerizer) Launch(ctx context.Context, proto *launchspec.Proto, fork bool) error {
	stop := sig.Install(func(os.Signal) interface{} { return sig.Resume{} })
	defer stop()

	launchy, err := launchspec.Normalize(proto)
	if err != nil {
		return fmt.Errorf("failed to normalize launch request: %w", err)
	}

	st := state.OpenByContainerID(c.StateRoot, launchy.ContainerID)
	if err := st.Push(); err != nil {
		return err
	}

	lkLaunch, err := st.Lock(ctx, state.LockLaunch, filelock.Exclusive, filelock.DefaultTimeout)
	if err != nil {
		return fmt.Errorf("failed to acquire launch lock: %w", err)
	}
	st.SetExecutorID(launchy.ExecutorID)
	if err := st.Push(); err != nil {
		lkLaunch.Release()
		return err
	}

	if launchy.Directory != "" {
		if err := os.Chdir(launchy.Directory); err != nil {
			lkLaunch.Release()
			return fmt.Errorf("failed to chdir to %s: %w", launchy.Directory, err)
		}
	}

	options, trailingArgv, hadTrailing := splitOn(launchy.Options, "//")
	image, options := c.ContainerSettings.Image.Override(launchy.Image), c.ContainerSettings.Options.Override(options)

	argv := launchy.Argv
	if hadTrailing {
		argv = trailingArgv
	}

	resolvedImage, err := c.determineImage(image, launchy.NeedsObserver)
	if err != nil {
		lkLaunch.Release()
		return fmt.Errorf("failed to determine image: %w", err)
	}
	c.Log.Info().Str("image", resolvedImage).Msg("resolved container image")

	if err := c.Stager.Place(ctx, c.sharedDir(), toStageURIs(launchy.URIs), c.OptimisticUnpack); err != nil {
		lkLaunch.Release()
		return err
	}

	sharedFull, err := filepath.Abs(c.sharedDir())
	if err != nil {
		lkLaunch.Release()
		return err
	}
	sandboxSymlink, err := st.SandboxSymlink(sharedFull)
	if err != nil {
		lkLaunch.Release()
		return err
	}

	runOptions := []string{"--cidfile", st.ResolvePath("cid")}
	runOptions = append(runOptions, "-w", c.workdir())
	runOptions = append(runOptions, "-v", fmt.Sprintf("%s:%s", sandboxSymlink, c.workdir()))
	runOptions = append(runOptions, options...)

	env := toEnvPairs(launchy.Env)
	var observerArgv []string
	if launchy.NeedsObserver {
		observerArgv = c.observerArgv(launchy.ContainerID)
		// Taken here, in the foreground `launch` invocation, rather than
		// re-acquired by the detached supervisor: it is released at this
		// process's exit, not when the observer itself completes. The
		// ordering guarantee this lock exists for still holds, because
		// superviseLocked only releases the wait lock after it has joined
		// the observer process, but the lock's held-until-observer-
		// completes lifetime described in the design doc no longer
		// literally matches where it's acquired.
		if _, err := st.Lock(ctx, state.LockObserve, filelock.Exclusive, 0); err != nil {
			lkLaunch.Release()
			return fmt.Errorf("failed to take observe lock before spawning observer: %w", err)
		}
	} else {
		env = append(env, mesosEnv()...)
		env = append(env, runtimedriver.EnvPair{Key: "MESOS_DIRECTORY", Value: c.workdir()})
	}

	c.placeDockercfg()

	cpuShares, memMiB := parseCPUMem(launchy.CPUShares, launchy.MemoryMiB)

	if err := c.runHook(c.Hooks.OnLaunch, env); err != nil {
		c.Log.Warn().Err(err).Msg("onlaunch hook failed")
	}

	stdout, err := os.Create("stdout")
	if err != nil {
		lkLaunch.Release()
		return fmt.Errorf("failed to open sandbox stdout: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create("stderr")
	if err != nil {
		lkLaunch.Release()
		return fmt.Errorf("failed to open sandbox stderr: %w", err)
	}
	defer stderr.Close()

	runnerCmd, err := c.Driver.Run(ctx, runtimedriver.RunOptions{
		Image:   resolvedImage,
		Options: runOptions,
		Command: argv,
		Env:     env,
		CPUs:    cpuShares,
		Mems:    memMiB,
		Ports:   launchy.Ports,
	}, stdout, stderr)
	if err != nil {
		lkLaunch.Release()
		return fmt.Errorf("failed to start container: %w", err)
	}
	runnerPID := runnerCmd.Process.Pid

	if err := st.AwaitCID(ctx, 2*time.Second); err != nil {
		lkLaunch.Release()
		return err
	}
	if err := st.Push(); err != nil {
		lkLaunch.Release()
		return err
	}

	lkWait, err := st.Lock(ctx, state.LockWait, filelock.Exclusive, filelock.DefaultTimeout)
	if err != nil {
		lkLaunch.Release()
		return fmt.Errorf("failed to acquire wait lock: %w", err)
	}
	if err := lkLaunch.Release(); err != nil {
		return err
	}

	if fork {
		return c.Supervise(ctx, launchy.ContainerID, observerArgv, env, lkWait, runnerPID)
	}
	// No detached hand-off in this invocation: it is itself the
	// supervising adapter invocation, so its own pid is the one
	// callers target for cancellation (spec's "supervisor PID").
	if err := st.SetPid(os.Getpid()); err != nil {
		lkWait.Release()
		return err
	}
	return c.superviseLocked(ctx, launchy.ContainerID, observerArgv, env, lkWait, runnerPID)
}

// Supervise re-execs the current binary as a detached supervisor
// process for containerID and returns to the caller (the foreground
// `launch` invocation) as soon as it has started, playing the role of
// the parent-returns-after-fork half of the original's os.fork() call.
//
// Unlike a real fork, the re-exec'd child does not inherit lkWait's
// open file descriptor, so the wait lock cannot simply carry over: the
// advisory lock is tied to an open file description that exec does not
// duplicate into an unrelated process. REDESIGN: the parent releases
// lkWait immediately after starting the child, and the child
// (RunSupervisor, invoked from the hidden `observe-supervisor`
// subcommand) re-acquires it as its very first action. This leaves a
// narrow window, bounded by process-start latency, during which no
// process holds the wait lock; `wait`/`containers` callers that sample
// state in that window see "not yet running" rather than "running",
// which is the same ambiguity they'd see a few milliseconds earlier in
// the launch sequence anyway.
func (c *Containerizer) Supervise(ctx context.Context, containerID string, observerArgv []string, env []runtimedriver.EnvPair, lkWait *filelock.Lock, runnerPID int) error {
	defer lkWait.Release()

	bin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve own executable for supervisor re-exec: %w", err)
	}
	args := []string{"observe-supervisor", "--state-root", c.StateRoot, "--runner-pid", strconv.Itoa(runnerPID), containerID}
	if len(observerArgv) > 0 {
		args = append(args, "--observer")
		args = append(args, observerArgv...)
	}
	cmd := exec.Command(bin, args...)
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start detached supervisor: %w", err)
	}
	c.Log.Info().Int("pid", cmd.Process.Pid).Msg("forked watcher into detached supervisor")
	return cmd.Process.Release()
}

// RunSupervisor is the entry point for the detached `observe-supervisor`
// subcommand started by Supervise. It re-acquires the wait lock the
// parent released on handoff, then runs the same observer/wait/exit
// sequence the non-forking path runs inline.
func (c *Containerizer) RunSupervisor(ctx context.Context, containerID string, observerArgv []string, env []runtimedriver.EnvPair, runnerPID int) error {
	st := state.OpenByContainerID(c.StateRoot, containerID)
	// This detached process, not the foreground `launch` invocation
	// that re-exec'd it, is the supervisor spec's `pid` refers to:
	// callers target it for cancellation once supervision has handed off.
	if err := st.SetPid(os.Getpid()); err != nil {
		return err
	}
	lkWait, err := st.Lock(ctx, state.LockWait, filelock.Exclusive, filelock.DefaultTimeout)
	if err != nil {
		return fmt.Errorf("supervisor failed to re-acquire wait lock: %w", err)
	}
	return c.superviseLocked(ctx, containerID, observerArgv, env, lkWait, runnerPID)
}

// superviseLocked runs the observer and blocks on the runtime's wait
// call, with lkWait already held by the caller; it releases lkWait
// once the exit code has been recorded. Shared by the inline
// (--no-fork) path and RunSupervisor.
func (c *Containerizer) superviseLocked(ctx context.Context, containerID string, observerArgv []string, env []runtimedriver.EnvPair, lkWait *filelock.Lock, runnerPID int) error {
	defer lkWait.Release()

	st := state.OpenByContainerID(c.StateRoot, containerID)
	cid, err := st.CID(false)
	if err != nil {
		return err
	}

	var observerCmd *exec.Cmd
	if len(observerArgv) > 0 {
		observerCmd = c.startObserver(st, observerArgv)
	}

	out, waitErr := c.Driver.Wait(ctx, cid)
	exitCode := runtimedriver.ReadWaitCode(out)
	if waitErr != nil {
		c.Log.Warn().Err(waitErr).Msg("runtime wait returned an error, recording best-effort exit code")
	}
	if err := st.SetExit(exitCode); err != nil {
		return err
	}

	if observerCmd != nil {
		waitWithEscalation(c.Log, observerCmd, "observer")
	}
	// The runtime's attached CLI process was started by the foreground
	// `launch` invocation, not by this process (which may be a
	// re-exec'd supervisor with no kernel parent/child relationship to
	// it), so it is reaped by pid rather than by *exec.Cmd.Wait.
	waitPidWithEscalation(c.Log, runnerPID, "runner")

	c.runHookDetached(c.Hooks.OnDestroy, env)
	return nil
}

func (c *Containerizer) startObserver(st *state.State, observerArgv []string) *exec.Cmd {
	outPath := st.ResolvePath("observer.out")
	errPath := st.ResolvePath("observer.err")
	outFile, err := os.Create(outPath)
	if err != nil {
		c.Log.Warn().Err(err).Msg("failed to open observer.out")
		return nil
	}
	errFile, err := os.Create(errPath)
	if err != nil {
		c.Log.Warn().Err(err).Msg("failed to open observer.err")
		return nil
	}

	env := os.Environ()
	env = stripEnv(env, "LIBPROCESS_PORT", "LIBPROCESS_IP")

	cmd := exec.Command(observerArgv[0], observerArgv[1:]...)
	cmd.Env = env
	cmd.Stdout = outFile
	cmd.Stderr = errFile
	if err := cmd.Start(); err != nil {
		c.Log.Warn().Err(err).Msg("failed to start observer")
		return nil
	}
	return cmd
}

func (c *Containerizer) observerArgv(containerID string) []string {
	libexec := os.Getenv("MESOS_LIBEXEC_DIRECTORY")
	self, _ := os.Executable()
	return []string{
		filepath.Join(libexec, "mesos-executor"),
		"--override", self, "observe", containerID,
	}
}

// Wait blocks until a container's exit status is recorded, matching
// the original's `wait`, including the observe-before-wait lock
// ordering resolved during design.
func (c *Containerizer) Wait(ctx context.Context, containerID string) (*WaitResult, error) {
	st := state.OpenByContainerID(c.StateRoot, containerID)
	stop := sig.Install(c.stopDockerAndResumeHandler(st))
	defer stop()

	if _, err := st.AwaitLaunch(ctx, 2*time.Second); err != nil {
		return nil, err
	}

	lkObserve, err := st.Lock(ctx, state.LockObserve, filelock.Shared, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire observe lock: %w", err)
	}
	defer lkObserve.Release()

	lkWait, err := st.Lock(ctx, state.LockWait, filelock.Shared, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire wait lock: %w", err)
	}
	defer lkWait.Release()

	exitCode, ok, err := st.Exit()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("wait lock is not held nor is exit file present")
	}
	return &WaitResult{ExitStatus: exitCode}, nil
}

// WaitResult is the containerizer-level view of a Termination record.
type WaitResult struct {
	ExitStatus int
}

// Status combines status returned to the `wait` verb the way a raw
// POSIX wait(2) status would encode it (exit code in the high byte),
// matching the original's `termination << 8`.
func (w *WaitResult) Status() int { return w.ExitStatus << 8 }

// Observe runs as the embedded-executor watchdog for a bare command
// task, blocking (shared) on the wait lock until launch's supervisor
// records an exit code, matching the original's `observe`.
func (c *Containerizer) Observe(ctx context.Context, containerID string) (int, error) {
	st := state.OpenByContainerID(c.StateRoot, containerID)
	stop := sig.Install(c.stopDockerAndResumeHandler(st))
	defer stop()

	if _, err := st.AwaitLaunch(ctx, 2*time.Second); err != nil {
		return 0, err
	}
	lkWait, err := st.Lock(ctx, state.LockWait, filelock.Shared, -1)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire wait lock: %w", err)
	}
	defer lkWait.Release()

	code, ok, err := st.Exit()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("wait lock is not held nor is exit file present")
	}
	return code, nil
}

func (c *Containerizer) stopDockerAndResumeHandler(st *state.State) sig.Handler {
	return func(os.Signal) interface{} {
		cid, err := st.CID(false)
		if err == nil && cid != "" {
			c.Log.Info().Str("cid", cid).Msg("trying to stop runtime container")
			_ = c.Driver.Stop(context.Background(), cid)
		}
		return sig.Resume{}
	}
}

// Destroy stops a still-running container, matching the original's `destroy`.
func (c *Containerizer) Destroy(ctx context.Context, containerID string) error {
	st := state.OpenByContainerID(c.StateRoot, containerID)
	if _, err := st.AwaitLaunch(ctx, 2*time.Second); err != nil {
		return err
	}
	lkDestroy, err := st.Lock(ctx, state.LockDestroy, filelock.Exclusive, filelock.DefaultTimeout)
	if err != nil {
		return fmt.Errorf("failed to acquire destroy lock: %w", err)
	}
	defer lkDestroy.Release()

	if _, ok, err := st.Exit(); err != nil {
		return err
	} else if ok {
		c.Log.Info().Msg("container is already stopped")
		return nil
	}

	cid, err := st.CID(false)
	if err != nil {
		return err
	}
	return c.Driver.Stop(ctx, cid)
}

// Usage reads cgroup accounting for a running container, matching the
// original's `usage`.
func (c *Containerizer) Usage(ctx context.Context, containerID string) (*cgroup.Stats, error) {
	st := state.OpenByContainerID(c.StateRoot, containerID)
	if _, err := st.AwaitLaunch(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	cid, err := st.CID(false)
	if err != nil {
		return nil, err
	}
	if cid == "" {
		c.Log.Info().Msg("container not started?")
		return nil, nil
	}
	if _, ok, err := st.Exit(); err != nil {
		return nil, err
	} else if ok {
		c.Log.Info().Msg("container is stopped")
		return nil, nil
	}
	stats, err := cgroup.Read(cid)
	if err != nil {
		return nil, err
	}
	if len(stats.SubsystemsPresent) == 0 {
		c.Log.Info().Msg("container has no cgroups, already stopped?")
		return nil, nil
	}
	return stats, nil
}

// Containers lists the agent-visible container ids whose runtime
// container is still running (i.e. launch() is still holding the
// wait lock exclusively), matching the original's `containers`.
func (c *Containerizer) Containers(ctx context.Context) ([]string, error) {
	out, err := c.Driver.RunRaw(ctx, "ps", "--no-trunc", "-q")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		cid := strings.TrimSpace(line)
		if cid == "" {
			continue
		}
		st := state.OpenByRuntimeID(c.StateRoot, cid)
		if !st.Exists() {
			continue
		}
		lk, err := st.Lock(ctx, state.LockWait, filelock.Shared, 0)
		if err != nil {
			var locked *filelock.Locked
			if !errors.As(err, &locked) {
				return nil, err
			}
			// launch() holds the wait lock exclusively: still running.
			containerID, cErr := st.ContainerID()
			if cErr == nil {
				ids = append(ids, containerID)
			}
			continue
		}
		lk.Release()
	}
	return ids, nil
}

// Update is a no-op for this runtime, matching the original's `update`.
func (c *Containerizer) Update(context.Context, string) error { return nil }

// Recover is a no-op: the base containerizer's recover() is never
// overridden by the original's Docker containerizer, so agent restarts
// rely entirely on the on-disk state directory rather than any explicit
// reconciliation step here.
func (c *Containerizer) Recover(context.Context) error { return nil }

func (c *Containerizer) determineImage(overriddenImage string, needsObserver bool) (string, error) {
	image, _ := launchspec.ParseDockerImageURL(overriddenImage)
	if image != "" {
		return image, nil
	}
	if c.ContainerSettings.Image.Default != "" {
		def, _ := launchspec.ParseDockerImageURL(c.ContainerSettings.Image.Default)
		return def, nil
	}

	account := c.IndexSettings.Account
	if c.IndexSettings.AccountLibmesos != "" && !needsObserver {
		account = c.IndexSettings.AccountLibmesos
	}
	base, err := runtimedriver.MatchingImageForHost("", "")
	if err != nil {
		return "", err
	}
	return runtimedriver.ImageToken(base, account, c.IndexSettings.Index), nil
}

func (c *Containerizer) placeDockercfg() {
	if c.IndexSettings.Dockercfg == "" {
		return
	}
	src := c.IndexSettings.Dockercfg
	c.Log.Info().Str("src", src).Msg("copying to .dockercfg")
	if err := copyFile(src, ".dockercfg"); err != nil {
		c.Log.Warn().Err(err).Msg("failed to place .dockercfg")
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}

func (c *Containerizer) runHook(argv []string, env []runtimedriver.EnvPair) error {
	if len(argv) == 0 {
		return nil
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = envPairsToStrings(env)
	return cmd.Start()
}

func (c *Containerizer) runHookDetached(argv []string, env []runtimedriver.EnvPair) {
	if len(argv) == 0 {
		return
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = envPairsToStrings(env)
	if err := cmd.Start(); err != nil {
		c.Log.Warn().Err(err).Msg("ondestroy hook failed")
	}
}

func envPairsToStrings(env []runtimedriver.EnvPair) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		out = append(out, fmt.Sprintf("%s=%s", e.Key, e.Value))
	}
	return out
}

func mesosEnv() []runtimedriver.EnvPair {
	var out []runtimedriver.EnvPair
	for _, k := range mesosEssentialEnv {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			out = append(out, runtimedriver.EnvPair{Key: k, Value: v})
		}
	}
	return out
}

func toEnvPairs(in []launchspec.EnvPair) []runtimedriver.EnvPair {
	out := make([]runtimedriver.EnvPair, 0, len(in))
	for _, e := range in {
		out = append(out, runtimedriver.EnvPair{Key: e.Name, Value: e.Value})
	}
	return out
}

func toStageURIs(in []launchspec.URI) []uristage.URI {
	out := make([]uristage.URI, 0, len(in))
	for _, u := range in {
		out = append(out, uristage.URI{Value: u.Value, Executable: u.Executable, Extract: u.Extract})
	}
	return out
}

// splitOn mirrors the original's `split_on`: it splits items on the
// first occurrence of sep, returning the preceding elements and the
// elements after sep (sep itself dropped); hadSeparator is false when
// sep never occurs, in which case after is always nil.
func splitOn(items []string, sep string) (before, after []string, hadSeparator bool) {
	for i, item := range items {
		if item == sep {
			return items[:i], items[i+1:], true
		}
	}
	return items, nil, false
}

func parseCPUMem(cpuShares, memMiB string) (cpus float64, mems int64) {
	if cpuShares != "" {
		fmt.Sscanf(cpuShares, "%f", &cpus)
		cpus /= 1024
	}
	if memMiB != "" {
		trimmed := strings.TrimSuffix(memMiB, "m")
		fmt.Sscanf(trimmed, "%d", &mems)
	}
	return cpus, mems
}

func stripEnv(env []string, keys ...string) []string {
	out := env[:0:0]
	for _, e := range env {
		skip := false
		for _, k := range keys {
			if strings.HasPrefix(e, k+"=") {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, e)
		}
	}
	return out
}

func waitWithEscalation(log zerolog.Logger, cmd *exec.Cmd, label string) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
		return
	case <-time.After(10 * time.Second):
		log.Warn().Str("process", label).Msg("sending SIGTERM after 10s")
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-done:
		return
	case <-time.After(1 * time.Second):
		log.Warn().Str("process", label).Msg("sending SIGKILL after 1s")
		_ = cmd.Process.Kill()
	}
	<-done
}

// waitPidWithEscalation polls a process we did not ourselves fork (so
// we cannot os/exec.Cmd.Wait it) for exit, escalating from SIGTERM
// after 10s to SIGKILL after 1s more, same as waitWithEscalation.
// os.FindProcess always succeeds on Unix, and Signal(0) is a liveness
// probe that works regardless of kernel parentage; once the process's
// real parent (the foreground `launch` invocation) exits, init reaps
// it, so this never polls a permanent zombie.
func waitPidWithEscalation(log zerolog.Logger, pid int, label string) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	alive := func() bool { return proc.Signal(syscall.Signal(0)) == nil }

	deadline := time.Now().Add(10 * time.Second)
	for alive() && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if alive() {
		log.Warn().Str("process", label).Msg("sending SIGTERM after 10s")
		_ = proc.Signal(syscall.SIGTERM)
	}

	deadline = time.Now().Add(1 * time.Second)
	for alive() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if alive() {
		log.Warn().Str("process", label).Msg("sending SIGKILL after 1s")
		_ = proc.Kill()
	}
}
