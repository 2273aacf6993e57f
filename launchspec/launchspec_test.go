package launchspec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func taskProto() *Proto {
	return &Proto{
		ContainerID: "container-1",
		Directory:   "/mnt/mesos/sandbox",
		TaskInfo: &TaskInfo{
			Name:   "my-task",
			TaskID: ID{Value: "task-1"},
			Command: Command{
				HasValue: true,
				Value:    "echo hi",
				Container: &Container{
					Image:   "docker:///centos:7",
					Options: []string{"-v", "/tmp:/tmp"},
				},
				Environment: &Environment{Variables: []EnvVariable{
					{Name: "FOO", Value: "bar"},
				}},
				URIs: []URI{{Value: "http://example.com/a.tar.gz", Extract: true}},
			},
			Resources: []Resource{
				{Name: "cpus", Scalar: &Scalar{Value: 0.5}},
				{Name: "mem", Scalar: &Scalar{Value: 256}},
				{Name: "ports", Ranges: &Ranges{Range: []Range{{Begin: 31000, End: 31001}}}},
			},
		},
	}
}

func TestNormalizeTaskWithoutExecutorNeedsObserver(t *testing.T) {
	spec, err := Normalize(taskProto())
	require.NoError(t, err)
	require.True(t, spec.NeedsObserver)
	require.Equal(t, "task-1", spec.ExecutorID)
	require.Equal(t, "docker:///centos:7", spec.Image)
	require.Equal(t, []string{"-v", "/tmp:/tmp"}, spec.Options)
	require.Equal(t, []string{"sh", "-c", "echo hi"}, spec.Argv)
	require.Equal(t, "512", spec.CPUShares)
	require.Equal(t, "256m", spec.MemoryMiB)
	require.Equal(t, []int{31000, 31001}, spec.Ports)
	require.Contains(t, spec.Env, EnvPair{Name: "FOO", Value: "bar"})
	require.Contains(t, spec.Env, EnvPair{Name: "TASK_INFO", Value: "my-task"})
}

func TestNormalizeTaskWithExecutorDoesNotNeedObserver(t *testing.T) {
	p := taskProto()
	p.TaskInfo.Executor = &Executor{
		ExecutorID: ID{Value: "exec-1"},
		Command: Command{
			Container: &Container{Image: "docker:///ubuntu:20.04"},
		},
	}
	spec, err := Normalize(p)
	require.NoError(t, err)
	require.False(t, spec.NeedsObserver)
	require.Equal(t, "exec-1", spec.ExecutorID)
	require.Equal(t, "docker:///ubuntu:20.04", spec.Image)
}

func TestNormalizeDefaultsToBareDockerImageWhenNoContainer(t *testing.T) {
	p := taskProto()
	p.TaskInfo.Command.Container = nil
	spec, err := Normalize(p)
	require.NoError(t, err)
	require.Equal(t, "docker:///", spec.Image)
}

func TestNormalizeEmptyCommandValueProducesNoArgv(t *testing.T) {
	p := taskProto()
	p.TaskInfo.Command.HasValue = false
	p.TaskInfo.Command.Value = ""
	spec, err := Normalize(p)
	require.NoError(t, err)
	require.Nil(t, spec.Argv)
}

func TestNormalizeRequiresTaskInfoOrExecutorInfo(t *testing.T) {
	_, err := Normalize(&Proto{ContainerID: "c1"})
	require.Error(t, err)
}

func TestParseDockerImageURLSplitsArgvOverride(t *testing.T) {
	image, argv := ParseDockerImageURL("docker:///centos:7//bash -lc env")
	require.Equal(t, "centos:7", image)
	require.Equal(t, []string{"bash", "-lc", "env"}, argv)
}

func TestParseDockerImageURLWithoutOverride(t *testing.T) {
	image, argv := ParseDockerImageURL("docker:///centos:7")
	require.Equal(t, "centos:7", image)
	require.Nil(t, argv)
}

func TestParseDockerImageURLBareSchemeYieldsEmptyImage(t *testing.T) {
	image, argv := ParseDockerImageURL("docker:///")
	require.Equal(t, "", image)
	require.Nil(t, argv)
}
