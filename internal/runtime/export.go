package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/containerd/containerd/v2/core/containers"
	"github.com/containerd/containerd/v2/core/content"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/containerd/v2/core/images/archive"
	"github.com/containerd/containerd/v2/pkg/rootfs"
	"github.com/containerd/platforms"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/offstage/internal/fault"
)

const archiveName = "image.tar"

// Commits the container's filesystem changes and writes the image to
// output/image.tar, returning the archive path.
//
// The snapshot diff becomes one new layer and cfg is overlaid on the base
// image config with [applyConfig]. The new manifest, config and index exist
// only as leased content blobs, so the base image record in containerd is
// left untouched.
func (c *Container) Export(ctx context.Context, output string, cfg ocispec.ImageConfig) (string, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return "", fault.Wrap(fault.ErrRuntime, err)
	}
	info, err := ctr.Info(ctx)
	if err != nil {
		return "", fault.Wrap(fault.ErrRuntime, err)
	}

	ctx, release, err := c.client.WithLease(ctx)
	if err != nil {
		return "", fault.Wrap(fault.ErrRuntime, err)
	}
	defer release(context.WithoutCancel(ctx))

	target, err := c.commitTarget(ctx, info, cfg)
	if err != nil {
		return "", fault.Wrap(fault.ErrRuntime, err)
	}

	path := filepath.Join(output, archiveName)
	if err := c.writeArchive(ctx, target, info.Image, path); err != nil {
		return "", fault.Wrap(fault.ErrRuntime, err)
	}
	slog.Info("image exported", "path", path)
	return path, nil
}

// Overlays cfg on an image config. Entrypoint replaces the base entrypoint
// and clears its command. Env and exposed ports are merged. Other fields
// replace the base value when set.
func applyConfig(base *ocispec.ImageConfig, cfg ocispec.ImageConfig) {
	if len(cfg.Entrypoint) > 0 {
		base.Entrypoint = cfg.Entrypoint
		base.Cmd = nil
	}
	if len(cfg.Cmd) > 0 {
		base.Cmd = cfg.Cmd
	}
	if len(cfg.Env) > 0 {
		base.Env = mergeEnv(base.Env, cfg.Env)
	}
	if len(cfg.ExposedPorts) > 0 {
		if base.ExposedPorts == nil {
			base.ExposedPorts = make(map[string]struct{}, len(cfg.ExposedPorts))
		}
		for port := range cfg.ExposedPorts {
			base.ExposedPorts[port] = struct{}{}
		}
	}
	if cfg.WorkingDir != "" {
		base.WorkingDir = cfg.WorkingDir
	}
	if cfg.User != "" {
		base.User = cfg.User
	}
	if cfg.StopSignal != "" {
		base.StopSignal = cfg.StopSignal
	}
}

// Merges KEY=VALUE overrides on top of base. Entries without "=" are
// dropped. The result is sorted so committed configs are reproducible.
func mergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, entry := range slices.Concat(base, overrides) {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}
	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// Writes the committed manifest, config and (for an index base) a
// single-entry index to the content store and returns the root descriptor.
func (c *Container) commitTarget(ctx context.Context, info containers.Container, cfg ocispec.ImageConfig) (ocispec.Descriptor, error) {
	cs := c.client.ContentStore()

	layer, err := rootfs.CreateDiff(ctx, info.SnapshotKey, c.client.SnapshotService(info.Snapshotter), c.client.DiffService())
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	diffID, err := images.GetDiffID(ctx, cs, layer)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	img, err := c.client.ImageService().Get(ctx, info.Image)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc, index, err := c.platformManifest(ctx, img.Target)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%s: %w", info.Image, err)
	}

	manifest, err := readJSON[ocispec.Manifest](ctx, cs, desc)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	config, err := readJSON[ocispec.Image](ctx, cs, manifest.Config)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	manifest.Layers = append(manifest.Layers, layer)
	config.RootFS.DiffIDs = append(config.RootFS.DiffIDs, diffID)
	applyConfig(&config.Config, cfg)

	if manifest.Config, err = writeJSON(ctx, cs, manifest.Config.MediaType, config, nil); err != nil {
		return ocispec.Descriptor{}, err
	}
	labels := gcLabels("l", manifest.Layers)
	labels["containerd.io/gc.ref.content.config"] = manifest.Config.Digest.String()
	desc, err = writeJSON(ctx, cs, desc.MediaType, manifest, labels)
	if err != nil || index == nil {
		return desc, err
	}

	// Other platforms' layers are usually absent from the content store.
	index.Manifests = []ocispec.Descriptor{desc}
	return writeJSON(ctx, cs, img.Target.MediaType, index, gcLabels("m", index.Manifests))
}

// Resolves root to the manifest for the container's platform. The index is
// returned when root is one.
//
// Index entries without a platform field, as some registries serve them,
// are matched by the platform in their image config. When nothing matches
// the first entry is used.
func (c *Container) platformManifest(ctx context.Context, root ocispec.Descriptor) (ocispec.Descriptor, *ocispec.Index, error) {
	if !images.IsIndexType(root.MediaType) {
		return root, nil, nil
	}

	cs := c.client.ContentStore()
	index, err := readJSON[ocispec.Index](ctx, cs, root)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	if len(index.Manifests) == 0 {
		return ocispec.Descriptor{}, nil, ErrEmptyIndex
	}

	p, err := platforms.Parse(c.platform)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	match := platforms.OnlyStrict(p)

	for _, m := range index.Manifests {
		if m.Platform != nil && match.Match(*m.Platform) {
			return m, &index, nil
		}
	}
	for _, m := range index.Manifests {
		if m.Platform != nil || !images.IsManifestType(m.MediaType) {
			continue
		}
		manifest, err := readJSON[ocispec.Manifest](ctx, cs, m)
		if err != nil {
			continue
		}
		config, err := readJSON[ocispec.Image](ctx, cs, manifest.Config)
		if err != nil {
			continue
		}
		if match.Match(config.Platform) {
			return m, &index, nil
		}
	}
	return index.Manifests[0], &index, nil
}

// Exports target as an OCI archive at path, annotated with imageName and
// limited to the container's platform.
func (c *Container) writeArchive(ctx context.Context, target ocispec.Descriptor, imageName, path string) error {
	p, err := platforms.Parse(c.platform)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.client.Export(ctx, f, archive.WithManifest(target, imageName), archive.WithPlatform(platforms.Only(p))); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readJSON[T any](ctx context.Context, cs content.Provider, desc ocispec.Descriptor) (T, error) {
	var v T
	b, err := content.ReadBlob(ctx, cs, desc)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(b, &v)
	return v, err
}

// Stores v as a JSON blob with the given GC labels.
func writeJSON(ctx context.Context, cs content.Ingester, mediaType string, v any, labels map[string]string) (ocispec.Descriptor, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{MediaType: mediaType, Digest: digest.FromBytes(b), Size: int64(len(b))}
	ref := "offstage-" + desc.Digest.Encoded()
	if err := content.WriteBlob(ctx, cs, ref, bytes.NewReader(b), desc, content.WithLabels(labels)); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Returns containerd GC reference labels ("containerd.io/gc.ref.content.<kind>.<i>")
// for a blob's children.
func gcLabels(kind string, children []ocispec.Descriptor) map[string]string {
	labels := make(map[string]string, len(children)+1)
	for i, d := range children {
		labels[fmt.Sprintf("containerd.io/gc.ref.content.%s.%d", kind, i)] = d.Digest.String()
	}
	return labels
}
