package finalize

import (
	"bytes"
	"fmt"

	"github.com/joho/godotenv"

	"github.com/cruciblehq/offstage/internal"
	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/paths"
	"github.com/cruciblehq/offstage/internal/rootfs"
)

// Interpreter environment variables controlled by [Flags].
const (
	EnvUnbuffered        = "PYTHONUNBUFFERED"
	EnvDontWriteByteCode = "PYTHONDONTWRITEBYTECODE"
)

// The two runtime environment flags.
type Flags struct {
	FlushOutput            bool // Unbuffered standard streams.
	CacheCompiledArtifacts bool // Whether the interpreter writes bytecode caches.
}

// Returns the interpreter defaults: buffered output, caches written.
func DefaultFlags() Flags {
	return Flags{FlushOutput: false, CacheCompiledArtifacts: true}
}

// Returns the environment variables expressing the flags. Variables are
// only present when they change the interpreter default.
func (f Flags) Env() map[string]string {
	env := map[string]string{}
	if f.FlushOutput {
		env[EnvUnbuffered] = "1"
	}
	if !f.CacheCompiledArtifacts {
		env[EnvDontWriteByteCode] = "1"
	}
	return env
}

// Returns the flags as sorted KEY=VALUE pairs.
func (f Flags) Environ() []string {
	env := f.Env()
	var out []string
	for _, k := range []string{EnvDontWriteByteCode, EnvUnbuffered} {
		if v, ok := env[k]; ok {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// Formats a summary of the flags for logging.
func (f Flags) String() string {
	return fmt.Sprintf("flush_output=%v cache_compiled_artifacts=%v", f.FlushOutput, f.CacheCompiledArtifacts)
}

// Decodes flags from environment variables. Any non-empty value enables a
// flag, as the interpreter does.
func FlagsFromEnv(env map[string]string) Flags {
	return Flags{
		FlushOutput:            env[EnvUnbuffered] != "",
		CacheCompiledArtifacts: env[EnvDontWriteByteCode] == "",
	}
}

// Writes the flags to [paths.RuntimeEnv] inside root.
func WriteFlags(root *rootfs.Root, f Flags) error {
	body, err := godotenv.Marshal(f.Env())
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Written by %s. Read by %s serve.\n", internal.Name, internal.Name)
	if body != "" {
		buf.WriteString(body + "\n")
	}
	return root.WriteFile(paths.RuntimeEnv, buf.Bytes(), paths.DefaultFileMode)
}

// Reads the flags recorded in root. A missing file yields [DefaultFlags].
func ReadFlags(root *rootfs.Root) (Flags, error) {
	full, err := root.Path(paths.RuntimeEnv)
	if err != nil {
		return Flags{}, fault.Wrap(fault.ErrFileSystem, err)
	}
	if !root.Exists(paths.RuntimeEnv) {
		return DefaultFlags(), nil
	}
	env, err := godotenv.Read(full)
	if err != nil {
		return Flags{}, fault.Wrap(fault.ErrFileSystem, err)
	}
	return FlagsFromEnv(env), nil
}
