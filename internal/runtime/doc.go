// Package runtime commits a runtime filesystem onto a base image with
// containerd.
//
// A [Runtime] connects to a containerd daemon. A base image archive is
// imported, tagged with a deterministic name, unpacked for the target
// platform and used to start a [Container] with a long-running task.
// Files are streamed into the container as tar archives, commands run as
// additional execs of that task, and the container's filesystem diff is
// committed as one new layer and exported as an OCI archive with an updated
// image config. The stored base image record is never modified.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "offstage")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartContainer(ctx, "base.tar", "offstage-commit", "")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	if err := ctr.CopyTree(ctx, "/build/root", "/"); err != nil {
//	    return err
//	}
//	if err := ctr.Export(ctx, "dist", config); err != nil {
//	    return err
//	}
package runtime
