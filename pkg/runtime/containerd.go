// Package runtime drives containerd to realize the node agent's side of
// spec.md §5: turning an InstanceScheduling command into running (or
// stopped, removed) OCI containers.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"

	"github.com/cuemby/ridgeline/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace ridgeline's node
	// agent operates in.
	DefaultNamespace = "ridgeline"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdRuntime drives one workload instance's containers through
// containerd. A WorkloadInstance may define more than one container
// (types.WorkloadSpec.Containers); each gets an OCI container named
// "<instance_id>-<container_name>" so they share an instance's lifetime
// without colliding across instances.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime connects to containerd at socketPath.
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("runtime: failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
	}, nil
}

// Close closes the containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func containerName(instanceID, containerName string) string {
	return instanceID + "-" + containerName
}

// PullImage pulls and unpacks an image so CreateInstance doesn't pay
// the pull cost on the scheduling hot path.
func (r *ContainerdRuntime) PullImage(ctx context.Context, imageRef string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	if _, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("runtime: failed to pull image %s: %w", imageRef, err)
	}
	return nil
}

// CreateInstance parses a WorkloadInstance's stored JSON definition and
// creates (but does not start) one containerd container per entry in
// its WorkloadSpec.Containers.
func (r *ContainerdRuntime) CreateInstance(ctx context.Context, instance *types.WorkloadInstance) error {
	var def types.WorkloadDefinition
	if err := json.Unmarshal(instance.Definition, &def); err != nil {
		return fmt.Errorf("runtime: invalid instance definition: %w", err)
	}

	ctx = namespaces.WithNamespace(ctx, r.namespace)

	for _, c := range def.Spec.Containers {
		image, err := r.client.GetImage(ctx, c.Image)
		if err != nil {
			image, err = r.client.Pull(ctx, c.Image, containerd.WithPullUnpack)
			if err != nil {
				return fmt.Errorf("runtime: failed to get or pull image %s: %w", c.Image, err)
			}
		}

		env := make([]string, 0, len(c.Env))
		for _, e := range c.Env {
			env = append(env, e.Name+"="+e.Value)
		}

		id := containerName(instance.InstanceID, c.Name)
		opts := []oci.SpecOpts{
			oci.WithImageConfig(image),
			oci.WithEnv(env),
		}

		if _, err := r.client.NewContainer(
			ctx,
			id,
			containerd.WithImage(image),
			containerd.WithNewSnapshot(id+"-snapshot", image),
			containerd.WithNewSpec(opts...),
		); err != nil {
			return fmt.Errorf("runtime: failed to create container %s: %w", id, err)
		}
	}

	return nil
}

// StartInstance starts every container belonging to instanceID.
func (r *ContainerdRuntime) StartInstance(ctx context.Context, instanceID string, def types.WorkloadDefinition) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	for _, c := range def.Spec.Containers {
		id := containerName(instanceID, c.Name)
		container, err := r.client.LoadContainer(ctx, id)
		if err != nil {
			return fmt.Errorf("runtime: failed to load container %s: %w", id, err)
		}

		task, err := container.NewTask(ctx, cio.NullIO)
		if err != nil {
			return fmt.Errorf("runtime: failed to create task for %s: %w", id, err)
		}
		if err := task.Start(ctx); err != nil {
			return fmt.Errorf("runtime: failed to start task for %s: %w", id, err)
		}
	}

	return nil
}

// StopInstance gracefully stops (SIGTERM, falling back to SIGKILL after
// timeout) every container belonging to instanceID.
func (r *ContainerdRuntime) StopInstance(ctx context.Context, instanceID string, def types.WorkloadDefinition, timeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	for _, c := range def.Spec.Containers {
		id := containerName(instanceID, c.Name)
		if err := r.stopContainer(ctx, id, timeout); err != nil {
			return err
		}
	}
	return nil
}

func (r *ContainerdRuntime) stopContainer(ctx context.Context, id string, timeout time.Duration) error {
	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		// Already gone.
		return nil
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// Never started.
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("runtime: failed to signal %s: %w", id, err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("runtime: failed to wait on %s: %w", id, err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("runtime: failed to force-kill %s: %w", id, err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("runtime: failed to delete task %s: %w", id, err)
	}
	return nil
}

// DeleteInstance stops (if needed) and removes every container and
// snapshot belonging to instanceID.
func (r *ContainerdRuntime) DeleteInstance(ctx context.Context, instanceID string, def types.WorkloadDefinition) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	for _, c := range def.Spec.Containers {
		id := containerName(instanceID, c.Name)
		if err := r.stopContainer(ctx, id, 10*time.Second); err != nil {
			return err
		}

		container, err := r.client.LoadContainer(ctx, id)
		if err != nil {
			continue
		}
		if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
			return fmt.Errorf("runtime: failed to delete container %s: %w", id, err)
		}
	}
	return nil
}

// InstanceStatus reports the aggregate status of an instance's
// containers: Running if every container has a running task, Failed if
// any container's task exited non-zero, Pending otherwise.
func (r *ContainerdRuntime) InstanceStatus(ctx context.Context, instanceID string, def types.WorkloadDefinition) (types.InstanceStatus, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	if len(def.Spec.Containers) == 0 {
		return types.StatusUnknown, nil
	}

	sawFailed := false
	allRunning := true

	for _, c := range def.Spec.Containers {
		id := containerName(instanceID, c.Name)
		container, err := r.client.LoadContainer(ctx, id)
		if err != nil {
			return types.StatusFailed, fmt.Errorf("runtime: failed to load container %s: %w", id, err)
		}

		task, err := container.Task(ctx, nil)
		if err != nil {
			allRunning = false
			continue
		}

		st, err := task.Status(ctx)
		if err != nil {
			return types.StatusFailed, fmt.Errorf("runtime: failed to get task status for %s: %w", id, err)
		}

		switch st.Status {
		case containerd.Running, containerd.Paused:
			// still up
		case containerd.Stopped:
			if st.ExitStatus != 0 {
				sawFailed = true
			}
			allRunning = false
		default:
			allRunning = false
		}
	}

	switch {
	case sawFailed:
		return types.StatusFailed, nil
	case allRunning:
		return types.StatusRunning, nil
	default:
		return types.StatusPending, nil
	}
}
