// Package launchspec normalizes the two shapes a launch request can
// arrive in — a task carrying its own command, or a task running under a
// custom executor — into one uniform record.
package launchspec

import (
	"fmt"
	"strconv"
	"strings"
)

// Proto mirrors the wire shape of a Mesos launch request closely
// enough to normalize, without depending on compiled protobuf
// bindings. Field
// names follow the proto's own snake_case so a RecordIO payload can
// be unmarshalled straight into this struct.
type Proto struct {
	ContainerID  string        `json:"container_id"`
	User         string        `json:"user,omitempty"`
	Directory    string        `json:"directory,omitempty"`
	TaskInfo     *TaskInfo     `json:"task_info,omitempty"`
	ExecutorInfo *ExecutorInfo `json:"executor_info,omitempty"`
}

type TaskInfo struct {
	Name      string     `json:"name"`
	TaskID    ID         `json:"task_id"`
	Command   Command    `json:"command"`
	Executor  *Executor  `json:"executor,omitempty"`
	Resources []Resource `json:"resources"`
}

type ExecutorInfo struct {
	ExecutorID ID         `json:"executor_id"`
	Command    Command    `json:"command"`
	Resources  []Resource `json:"resources,omitempty"`
}

// Executor is the nested form carried inside a TaskInfo.
type Executor struct {
	ExecutorID ID         `json:"executor_id"`
	Command    Command    `json:"command"`
	Resources  []Resource `json:"resources,omitempty"`
}

type ID struct {
	Value string `json:"value"`
}

type Command struct {
	Value       string       `json:"value,omitempty"`
	HasValue    bool         `json:"has_value,omitempty"`
	Container   *Container   `json:"container,omitempty"`
	Environment *Environment `json:"environment,omitempty"`
	URIs        []URI        `json:"uris,omitempty"`
}

type Container struct {
	Image   string   `json:"image"`
	Options []string `json:"options"`
}

type Environment struct {
	Variables []EnvVariable `json:"variables"`
}

type EnvVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type URI struct {
	Value      string `json:"value"`
	Executable bool   `json:"executable,omitempty"`
	Extract    bool   `json:"extract,omitempty"`
}

type Resource struct {
	Name   string  `json:"name"`
	Scalar *Scalar `json:"scalar,omitempty"`
	Ranges *Ranges `json:"ranges,omitempty"`
}

type Scalar struct {
	Value float64 `json:"value"`
}

type Ranges struct {
	Range []Range `json:"range"`
}

type Range struct {
	Begin uint64 `json:"begin"`
	End   uint64 `json:"end"`
}

// EnvPair preserves declaration order, unlike a map.
type EnvPair struct{ Name, Value string }

// Spec is the normalized record every downstream package (runtimedriver,
// uristage, containerizer) consumes, regardless of which proto shape
// it came from.
type Spec struct {
	ContainerID    string
	ExecutorID     string
	Image          string
	Options        []string
	Argv           []string
	Env            []EnvPair
	URIs           []URI
	Ports          []int
	CPUShares      string // already scaled by 1024, empty if unset
	MemoryMiB      string // already suffixed "m", empty if unset
	Directory      string
	User           string
	NeedsObserver  bool
}

// Normalize builds a Spec from a raw launch proto, resolving the
// task-with-executor vs. task-with-own-command ambiguity exactly as
// the original LaunchProto wrapper does.
func Normalize(p *Proto) (*Spec, error) {
	executor := resolveExecutor(p)
	cmd, err := resolveCommand(p, executor)
	if err != nil {
		return nil, err
	}

	image, options := resolveContainer(cmd)

	s := &Spec{
		ContainerID:   p.ContainerID,
		Image:         image,
		Options:       options,
		Argv:          resolveArgv(cmd),
		Env:           resolveEnv(cmd, p),
		URIs:          cmd.URIs,
		Directory:     p.Directory,
		User:          p.User,
		NeedsObserver: executor == nil,
	}

	if executor != nil {
		s.ExecutorID = executor.ExecutorID.Value
	} else if p.TaskInfo != nil {
		s.ExecutorID = p.TaskInfo.TaskID.Value
	}

	resources := resolveResources(p, executor)
	s.Ports = resolvePorts(resources)
	s.CPUShares, s.MemoryMiB = resolveCPUAndMem(resources)

	return s, nil
}

// resolveExecutor returns the governing ExecutorInfo: the proto's own
// executor_info, the task's nested executor, or nil when the task
// runs under the bare command executor (needs_observer == true).
func resolveExecutor(p *Proto) *Executor {
	if p.TaskInfo == nil {
		if p.ExecutorInfo != nil {
			return &Executor{
				ExecutorID: p.ExecutorInfo.ExecutorID,
				Command:    p.ExecutorInfo.Command,
				Resources:  p.ExecutorInfo.Resources,
			}
		}
		return nil
	}
	if p.TaskInfo.Executor != nil {
		return p.TaskInfo.Executor
	}
	return nil
}

func resolveCommand(p *Proto, executor *Executor) (*Command, error) {
	if executor != nil {
		return &executor.Command, nil
	}
	if p.TaskInfo == nil {
		return nil, fmt.Errorf("launch proto has neither executor nor task_info")
	}
	return &p.TaskInfo.Command, nil
}

// resolveContainer returns the image URL and options, defaulting to
// the bare "docker:///" sentinel that the containerizer core resolves
// further (image default resolution).
func resolveContainer(cmd *Command) (string, []string) {
	if cmd.Container != nil {
		return cmd.Container.Image, cmd.Container.Options
	}
	return "docker:///", nil
}

func resolveArgv(cmd *Command) []string {
	if cmd.HasValue && cmd.Value != "" {
		return []string{"sh", "-c", cmd.Value}
	}
	return nil
}

// resolveEnv flattens the environment variable list in declaration
// order and always appends TASK_INFO, matching the original's env()
// (TASK_INFO env var).
func resolveEnv(cmd *Command, p *Proto) []EnvPair {
	var env []EnvPair
	if cmd.Environment != nil {
		for _, v := range cmd.Environment.Variables {
			env = append(env, EnvPair{Name: v.Name, Value: v.Value})
		}
	}
	taskName := ""
	if p.TaskInfo != nil {
		taskName = p.TaskInfo.Name
	}
	env = append(env, EnvPair{Name: "TASK_INFO", Value: taskName})
	return env
}

// resolveResources picks task_info's resources unless the proto has
// no task_info at all, in which case the governing executor's own
// resources apply instead — matching the original's `resources()`
// ("we only want the executor resources when there is no task").
func resolveResources(p *Proto, executor *Executor) []Resource {
	if p.TaskInfo != nil {
		return p.TaskInfo.Resources
	}
	if executor != nil {
		return executor.Resources
	}
	return nil
}

func resolveCPUAndMem(resources []Resource) (cpu, mem string) {
	for _, r := range resources {
		if r.Scalar == nil {
			continue
		}
		switch r.Name {
		case "cpus":
			cpu = strconv.Itoa(int(r.Scalar.Value * 1024))
		case "mem":
			mem = strconv.Itoa(int(r.Scalar.Value)) + "m"
		}
	}
	return cpu, mem
}

func resolvePorts(resources []Resource) []int {
	var ports []int
	for _, r := range resources {
		if r.Name != "ports" || r.Ranges == nil {
			continue
		}
		for _, rng := range r.Ranges.Range {
			for p := rng.Begin; p <= rng.End; p++ {
				ports = append(ports, int(p))
			}
		}
	}
	return ports
}

// ParseDockerImageURL splits a docker:///image-name[//argv...] URL
// into its image component and any argv override that follows a `//`
// separator, matching the original's handling of `container.image`
// values of the form `docker:///centos:7//bash -lc env`.
func ParseDockerImageURL(raw string) (image string, argvOverride []string) {
	const scheme = "docker://"
	if !strings.HasPrefix(raw, scheme) {
		return raw, nil
	}
	rest := strings.TrimPrefix(raw, scheme)
	rest = strings.TrimPrefix(rest, "/")
	parts := strings.SplitN(rest, "//", 2)
	image = parts[0]
	if len(parts) == 2 && parts[1] != "" {
		argvOverride = strings.Fields(parts[1])
	}
	return image, argvOverride
}
