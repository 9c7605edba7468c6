package wheel

import (
	"errors"
	"testing"
)

var linuxEnv = map[string]string{
	"os_name":                        "posix",
	"sys_platform":                   "linux",
	"platform_machine":               "x86_64",
	"platform_system":                "Linux",
	"platform_python_implementation": "CPython",
	"implementation_name":            "cpython",
	"python_version":                 "3.12",
	"python_full_version":            "3.12.4",
}

func TestMarkerEvaluate(t *testing.T) {
	tests := []struct {
		marker string
		extra  string
		want   bool
	}{
		{`python_version >= "3.8"`, "", true},
		{`python_version < "3.10"`, "", false},
		{`python_full_version == "3.12.*"`, "", true},
		{`sys_platform == "win32"`, "", false},
		{`sys_platform != "win32" and os_name == "posix"`, "", true},
		{`sys_platform == "win32" or (platform_machine == "x86_64" and python_version > "3")`, "", true},
		{`"linux" in sys_platform`, "", true},
		{`platform_machine not in "arm64 aarch64"`, "", true},
		{`extra == "socks"`, "", false},
		{`extra == "socks"`, "socks", true},
		{`extra == "Dev_Tools"`, "dev-tools", true},
		{`'3.9' <= python_version`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.marker, func(t *testing.T) {
			m, err := ParseMarker(tt.marker)
			if err != nil {
				t.Fatal(err)
			}
			env := map[string]string{"extra": tt.extra}
			for k, v := range linuxEnv {
				env[k] = v
			}
			got, err := m.Evaluate(env)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMarkerErrors(t *testing.T) {
	for _, in := range []string{
		`python_version >= "3.8`,
		`python_version`,
		`unknown_var == "x"`,
		`(python_version == "3"`,
		`python_version == "3" and`,
		`python_version => "3"`,
		`os_name not "posix"`,
	} {
		if _, err := ParseMarker(in); !errors.Is(err, ErrMarker) {
			t.Errorf("ParseMarker(%q) err = %v, want ErrMarker", in, err)
		}
	}
}

func TestMarkerIncomparable(t *testing.T) {
	m, err := ParseMarker(`platform_machine > "x86_64"`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Evaluate(linuxEnv); !errors.Is(err, ErrMarker) {
		t.Fatalf("err = %v, want ErrMarker", err)
	}
}
