package config

import "path/filepath"

// defaultReleaseConfig mirrors the ddk repository layout: the ddk-ffi Rust
// core, its generated Swift and Kotlin bindings, and the ddk-ts napi binding
// package. A release.yaml in the project root overrides all of it.
func defaultReleaseConfig() ReleaseConfig {
	return ReleaseConfig{
		Version:   1,
		Component: "ddk",
		Packages: []PackageConfig{
			{
				Name:     "ddk-ffi",
				Manifest: filepath.Join("ddk-ffi", "Cargo.toml"),
				Kind:     ManifestCargo,
				Registry: RegistryCrates,
				Publish:  true,
			},
			{
				Name:     "ddk-ts",
				Manifest: filepath.Join("ddk-ts", "package.json"),
				Kind:     ManifestNPM,
				Registry: RegistryNPM,
				Publish:  true,
			},
		},
		Gates: []GateConfig{
			// The core library gates first; a broken ddk-ffi fails the
			// run before any binding work starts.
			{Dir: "ddk-ffi", Command: []string{"cargo", "test"}, Required: true},
			{Dir: "ddk-ts", Command: []string{"npm", "test"}, Required: false},
		},
		Targets: []TargetConfig{
			{
				Name:   "swift",
				Tag:    "apple-xcframework",
				Probe:  ProbeDarwin,
				Mobile: true,
				Generate: CommandSpec{
					Dir: "ddk-ffi",
					Command: []string{
						"cargo", "run", "--bin", "uniffi-bindgen", "--",
						"generate", "src/ddk_ffi.udl",
						"--language", "swift",
						"--out-dir", "bindings/swift",
					},
				},
				// The generator emits an include for a header name that
				// does not exist in the shipped framework.
				Patch: &PatchRule{
					Path:    filepath.Join("ddk-ffi", "bindings", "swift", "ddk_ffiFFI.h"),
					Find:    `#include "ddk_ffiFFI.h"`,
					Replace: `#include "ddk_ffi_ffi.h"`,
				},
				Build: CommandSpec{
					Dir:     "ddk-ffi",
					Command: []string{"sh", "scripts/build-xcframework.sh"},
				},
				Output: filepath.Join("ddk-ffi", "build", "DDKFFI.xcframework"),
			},
			{
				Name:   "android",
				Tag:    "android-jniLibs",
				Probe:  "env:ANDROID_NDK_HOME",
				Mobile: true,
				Generate: CommandSpec{
					Dir: "ddk-ffi",
					Command: []string{
						"cargo", "run", "--bin", "uniffi-bindgen", "--",
						"generate", "src/ddk_ffi.udl",
						"--language", "kotlin",
						"--out-dir", "bindings/kotlin",
					},
				},
				Build: CommandSpec{
					Dir:     "ddk-ffi",
					Command: []string{"sh", "scripts/build-jnilibs.sh"},
				},
				Output: filepath.Join("ddk-ffi", "build", "jniLibs"),
			},
			{
				Name:     "node",
				Tag:      "node",
				Probe:    ProbeAlways,
				Required: true,
				Generate: CommandSpec{
					Dir:     "ddk-ts",
					Command: []string{"npm", "run", "build"},
				},
				Output: filepath.Join("ddk-ts", "index.node"),
			},
		},
	}
}
