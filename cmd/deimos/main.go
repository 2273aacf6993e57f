// Command deimos is the external containerizer adapter: a short-lived
// CLI invoked once per verb by the node agent, translating the Mesos
// containerizer wire protocol into calls against a Docker-shaped
// runtime.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v2"

	"github.com/deimos-go/deimos/cleanup"
	"github.com/deimos-go/deimos/config"
	"github.com/deimos-go/deimos/containerizer"
	"github.com/deimos-go/deimos/launchspec"
	"github.com/deimos-go/deimos/lockbrowser"
	"github.com/deimos-go/deimos/recordio"
	"github.com/deimos-go/deimos/runtimedriver"
	"github.com/deimos-go/deimos/state"
	"github.com/deimos-go/deimos/uristage"
)

// codedError tags an error with the process exit code it should
// produce, matching the adapter's exit-code classification table.
type codedError struct {
	code int
	err  error
}

func (c *codedError) Error() string { return c.err.Error() }
func (c *codedError) Unwrap() error { return c.err }

func coded(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 8 // unhandled failure
}

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	app := newApp()
	if err := app.Run(argv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	return 0
}

// adapter bundles everything a verb action needs; built once per
// invocation from the loaded configuration.
type adapter struct {
	cfg config.Config
	cz  *containerizer.Containerizer
	log zerolog.Logger
}

func newAdapter(interactive bool) (*adapter, error) {
	cfg, err := config.Load("", interactive)
	if err != nil {
		return nil, coded(16, fmt.Errorf("failed to load configuration: %w", err))
	}
	logger, err := buildLogger(cfg.Log, interactive)
	if err != nil {
		return nil, coded(16, err)
	}

	driver := runtimedriver.New(cfg.Docker.Bin, cfg.Docker.Options, logger)
	cz := &containerizer.Containerizer{
		StateRoot:         cfg.State.Root,
		Hooks:             cfg.Hooks,
		ContainerSettings: cfg.Containers,
		IndexSettings:     cfg.Docker.Index,
		OptimisticUnpack:  cfg.URIs.Unpack,
		Driver:            driver,
		Stager:            uristage.Stager{Log: logger},
		Log:               logger,
	}
	return &adapter{cfg: cfg, cz: cz, log: logger}, nil
}

// buildLogger wires zerolog's console writer for interactive use, or a
// syslog-backed writer otherwise, threading a single zerolog.Logger
// value through the adapter rather than a package global.
func buildLogger(cfg config.Log, interactive bool) (zerolog.Logger, error) {
	level := cfg.Console
	w := os.Stderr
	if level == "" {
		level = cfg.Syslog
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if interactive || cfg.Console != "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).Level(lvl).With().Timestamp().Logger(), nil
	}
	sw, err := newSyslogWriter()
	if err != nil {
		// Falling back to stderr keeps the adapter usable on hosts
		// without a local syslog daemon rather than failing outright.
		return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
	}
	return zerolog.New(sw).Level(lvl).With().Timestamp().Logger(), nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "deimos",
		Usage:                "Mesos external containerizer adapter for Docker",
		HideHelpCommand:      true,
		EnableBashCompletion: false,
		CommandNotFound: func(c *cli.Context, name string) {
			fmt.Fprintf(os.Stderr, "** Please specify a subcommand **\n")
		},
		Commands: []*cli.Command{
			launchCommand,
			waitCommand,
			usageCommand,
			destroyCommand,
			updateCommand,
			containersCommand,
			recoverCommand,
			observeCommand,
			observeSupervisorCommand,
			locksCommand,
			stateCommand,
			configCommand,
		},
	}
}

var launchCommand = &cli.Command{
	Name:  "launch",
	Usage: "launch a container from a RecordIO-framed launch descriptor on stdin",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "no-fork", Usage: "supervise inline instead of handing off to a detached process"},
	},
	Action: func(c *cli.Context) error {
		a, err := newAdapter(false)
		if err != nil {
			return err
		}
		var proto launchspec.Proto
		if err := recordio.Read(os.Stdin, &proto); err != nil {
			return coded(4, fmt.Errorf("failed to read launch descriptor: %w", err))
		}
		noFork := c.Bool("no-fork")
		if noFork && proto.ContainerID == "" {
			// --no-fork is the manual/debug invocation path: a developer
			// driving `launch` by hand rarely has a Mesos-assigned
			// container ID handy, so mint a scratch one.
			proto.ContainerID = uuid.NewString()
		}
		if err := a.cz.Launch(c.Context, &proto, !noFork); err != nil {
			return coded(4, err)
		}
		if err := recordio.Write(os.Stdout, statusRecord{OK: true}); err != nil {
			return coded(4, err)
		}
		return nil
	},
}

var waitCommand = &cli.Command{
	Name:  "wait",
	Usage: "block until a container terminates and report its Termination record",
	Action: func(c *cli.Context) error {
		a, err := newAdapter(false)
		if err != nil {
			return err
		}
		var req containerIDRecord
		if err := recordio.Read(os.Stdin, &req); err != nil {
			return coded(4, fmt.Errorf("failed to read wait descriptor: %w", err))
		}
		result, err := a.cz.Wait(c.Context, req.ContainerID)
		if err != nil {
			return coded(4, err)
		}
		return recordio.Write(os.Stdout, terminationRecord{Status: result.Status(), Killed: false})
	},
}

var usageCommand = &cli.Command{
	Name:  "usage",
	Usage: "report resource usage for a running container",
	Action: func(c *cli.Context) error {
		a, err := newAdapter(false)
		if err != nil {
			return err
		}
		var req containerIDRecord
		if err := recordio.Read(os.Stdin, &req); err != nil {
			return coded(4, fmt.Errorf("failed to read usage descriptor: %w", err))
		}
		stats, err := a.cz.Usage(c.Context, req.ContainerID)
		if err != nil {
			return coded(4, err)
		}
		if stats == nil {
			return nil // empty reply, exit 0, no body
		}
		return recordio.Write(os.Stdout, resourceStatisticsRecord{
			Timestamp:        time.Now().Unix(),
			MemLimitBytes:    stats.MemoryLimitBytes,
			MemRSSBytes:      stats.MemoryRSSBytes,
			CPUShareLimit:    stats.CPUShares,
			CPUUserSeconds:   stats.CPUUserSeconds,
			CPUSystemSeconds: stats.CPUSystemSeconds,
		})
	},
}

var destroyCommand = &cli.Command{
	Name:  "destroy",
	Usage: "stop a running container",
	Action: func(c *cli.Context) error {
		a, err := newAdapter(false)
		if err != nil {
			return err
		}
		var req containerIDRecord
		if err := recordio.Read(os.Stdin, &req); err != nil {
			return coded(4, fmt.Errorf("failed to read destroy descriptor: %w", err))
		}
		if err := a.cz.Destroy(c.Context, req.ContainerID); err != nil {
			return coded(4, err)
		}
		return nil
	},
}

var updateCommand = &cli.Command{
	Name:  "update",
	Usage: "no-op, matching the runtime's lack of live resource updates",
	Action: func(c *cli.Context) error {
		a, err := newAdapter(false)
		if err != nil {
			return err
		}
		var req containerIDRecord
		_ = recordio.Read(os.Stdin, &req)
		return coded(4, a.cz.Update(c.Context, req.ContainerID))
	},
}

var containersCommand = &cli.Command{
	Name:  "containers",
	Usage: "list the container ids this adapter still supervises",
	Action: func(c *cli.Context) error {
		a, err := newAdapter(false)
		if err != nil {
			return err
		}
		ids, err := a.cz.Containers(c.Context)
		if err != nil {
			return coded(4, err)
		}
		return recordio.Write(os.Stdout, containersRecord{ContainerIDs: ids})
	},
}

var recoverCommand = &cli.Command{
	Name:  "recover",
	Usage: "no-op; container state lives entirely in the state directory",
	Action: func(c *cli.Context) error {
		a, err := newAdapter(false)
		if err != nil {
			return err
		}
		return coded(4, a.cz.Recover(c.Context))
	},
}

var observeCommand = &cli.Command{
	Name:      "observe",
	Usage:     "internal: watchdog run in place of a bare command's executor",
	ArgsUsage: "<container-id>",
	Action: func(c *cli.Context) error {
		id := c.Args().First()
		if id == "" {
			return coded(1, fmt.Errorf("observe requires a container id"))
		}
		a, err := newAdapter(false)
		if err != nil {
			return err
		}
		code, err := a.cz.Observe(c.Context, id)
		if err != nil {
			return coded(4, err)
		}
		// This process stands in for the task's own exit status, so it
		// must itself terminate with the container's exit code rather
		// than the CLI's usual 0/1/4/8/16 classification.
		os.Exit(code)
		return nil
	},
}

// observeSupervisorCommand is the hidden entry point Containerizer.Supervise
// re-execs into for the forked launch path (not part of the documented CLI
// surface — an implementation detail of the fork-via-re-exec REDESIGN,
// see containerizer.Supervise).
var observeSupervisorCommand = &cli.Command{
	Name:   "observe-supervisor",
	Hidden: true,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "state-root"},
		&cli.IntFlag{Name: "runner-pid"},
		&cli.StringSliceFlag{Name: "observer"},
	},
	Action: func(c *cli.Context) error {
		id := c.Args().First()
		if id == "" {
			return coded(1, fmt.Errorf("observe-supervisor requires a container id"))
		}
		a, err := newAdapter(false)
		if err != nil {
			return err
		}
		if root := c.String("state-root"); root != "" {
			a.cz.StateRoot = root
		}
		observerArgv := c.StringSlice("observer")
		env := mesosEnvPairsFromEnviron()
		return coded(4, a.cz.RunSupervisor(c.Context, id, observerArgv, env, c.Int("runner-pid")))
	},
}

var locksCommand = &cli.Command{
	Name:  "locks",
	Usage: "list advisory locks currently held under the state directory",
	Action: func(c *cli.Context) error {
		a, err := newAdapter(true)
		if err != nil {
			return err
		}
		entries, err := lockbrowser.List(filepath.Join(a.cfg.State.Root, "mesos"))
		if err != nil {
			return coded(4, err)
		}
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "%d %d %s %s\n", e.Inode, e.PID, e.LckType, e.Path)
		}
		return nil
	},
}

var stateCommand = &cli.Command{
	Name:      "state",
	Usage:     "list, or with --rm remove, container state older than a cutoff",
	ArgsUsage: "[<cutoff-ISO8601>]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "rm", Usage: "remove matching state directories instead of listing them"},
	},
	Action: func(c *cli.Context) error {
		a, err := newAdapter(true)
		if err != nil {
			return err
		}
		cutoff := time.Now()
		if raw := c.Args().First(); raw != "" {
			parsed, err := state.ParseTimestamp(raw)
			if err != nil {
				return coded(1, fmt.Errorf("invalid cutoff %q: %w", raw, err))
			}
			cutoff = parsed
		}

		cl := cleanup.New(a.cfg.State.Root, true, a.log)
		if c.Bool("rm") {
			failures, err := cl.Remove(c.Context, cutoff, cleanup.Exited)
			if err != nil {
				return coded(4, err)
			}
			if failures > 0 {
				return coded(4, fmt.Errorf("%d state directories failed to remove", failures))
			}
			return nil
		}
		dirs, err := cl.Dirs(cutoff, cleanup.Exited)
		if err != nil {
			return coded(4, err)
		}
		for _, d := range dirs {
			fmt.Fprintln(os.Stdout, d)
		}
		return nil
	},
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "print the effective merged configuration as TOML",
	Action: func(c *cli.Context) error {
		a, err := newAdapter(true)
		if err != nil {
			return err
		}
		enc := toml.NewEncoder(os.Stdout)
		if err := enc.Encode(a.cfg); err != nil {
			return coded(4, fmt.Errorf("failed to render configuration: %w", err))
		}
		return nil
	},
}

// containerIDRecord is the minimal wire shape of the wait/usage/destroy
// /update descriptors: the protocol names them by role ("Wait record",
// "Usage record", ...) without detailing fields beyond the container
// id every one of them carries.
type containerIDRecord struct {
	ContainerID string `json:"container_id"`
}

type statusRecord struct {
	OK bool `json:"ok"`
}

type terminationRecord struct {
	Status int  `json:"status"`
	Killed bool `json:"killed"`
}

type resourceStatisticsRecord struct {
	Timestamp        int64   `json:"timestamp"`
	MemLimitBytes    uint64  `json:"mem_limit_bytes"`
	MemRSSBytes      uint64  `json:"mem_rss_bytes"`
	CPUShareLimit    float64 `json:"cpus_limit"`
	CPUUserSeconds   float64 `json:"cpus_user_time_secs"`
	CPUSystemSeconds float64 `json:"cpus_system_time_secs"`
}

type containersRecord struct {
	ContainerIDs []string `json:"container_ids"`
}

// mesosEnvPairsFromEnviron lets the re-exec'd supervisor fire the
// ondestroy hook with the same agent-provided environment the
// original invocation saw, since the detached process inherits the
// parent's environment but not its in-memory env slice.
func mesosEnvPairsFromEnviron() []runtimedriver.EnvPair {
	var out []runtimedriver.EnvPair
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out = append(out, runtimedriver.EnvPair{Key: parts[0], Value: parts[1]})
	}
	return out
}
