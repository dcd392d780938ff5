package docker

import (
	"path"
	"strings"

	"github.com/dontdude/coderoom/internal/domain"
)

// runtime describes how one language is compiled and run inside its image.
type runtime struct {
	language string
	version  string
	aliases  []string
	image    string
	// defaultFile is used when the request names no file.
	defaultFile string
	// compile is nil for interpreted languages.
	compile func(file string) []string
	run     func(file string) []string
}

var runtimeTable = []runtime{
	{
		language:    "javascript",
		version:     "18.15.0",
		aliases:     []string{"js", "node", "node-javascript"},
		image:       "node:18.15.0-alpine",
		defaultFile: "main.js",
		run:         func(f string) []string { return []string{"node", f} },
	},
	{
		language:    "python",
		version:     "3.10.0",
		aliases:     []string{"py", "py3", "python3"},
		image:       "python:3.10.0-alpine",
		defaultFile: "main.py",
		run:         func(f string) []string { return []string{"python3", f} },
	},
	{
		language:    "java",
		version:     "15.0.2",
		image:       "openjdk:15.0.2-jdk-slim",
		defaultFile: "Main.java",
		compile:     func(f string) []string { return []string{"javac", f} },
		run: func(f string) []string {
			return []string{"java", "-cp", ".", strings.TrimSuffix(f, path.Ext(f))}
		},
	},
	{
		language:    "c++",
		version:     "10.2.0",
		aliases:     []string{"cpp", "g++"},
		image:       "gcc:10.2.0",
		defaultFile: "main.cpp",
		compile:     func(f string) []string { return []string{"g++", "-O2", "-o", "main", f} },
		run:         func(string) []string { return []string{"./main"} },
	},
	{
		language:    "c",
		version:     "10.2.0",
		aliases:     []string{"gcc"},
		image:       "gcc:10.2.0",
		defaultFile: "main.c",
		compile:     func(f string) []string { return []string{"gcc", "-O2", "-o", "main", f, "-lm"} },
		run:         func(string) []string { return []string{"./main"} },
	},
	{
		language:    "go",
		version:     "1.16.2",
		aliases:     []string{"golang"},
		image:       "golang:1.16.2-alpine",
		defaultFile: "main.go",
		compile:     func(f string) []string { return []string{"go", "build", "-o", "main", f} },
		run:         func(string) []string { return []string{"./main"} },
	},
	{
		language:    "ruby",
		version:     "3.0.1",
		aliases:     []string{"rb", "ruby3"},
		image:       "ruby:3.0.1-alpine",
		defaultFile: "main.rb",
		run:         func(f string) []string { return []string{"ruby", f} },
	},
}

// lookup finds the runtime for a language id or alias. An empty version or
// "*" matches any version.
func lookup(language, version string) (runtime, bool) {
	for _, rt := range runtimeTable {
		if !rt.matches(language) {
			continue
		}
		if version == "" || version == "*" || version == rt.version {
			return rt, true
		}
	}
	return runtime{}, false
}

func (rt runtime) matches(language string) bool {
	if rt.language == language {
		return true
	}
	for _, a := range rt.aliases {
		if a == language {
			return true
		}
	}
	return false
}

// Runtimes lists every language the sandbox can run.
func Runtimes() []domain.Runtime {
	out := make([]domain.Runtime, 0, len(runtimeTable))
	for _, rt := range runtimeTable {
		out = append(out, domain.Runtime{
			Language: rt.language,
			Version:  rt.version,
			Aliases:  append([]string{}, rt.aliases...),
		})
	}
	return out
}

// fileName returns a safe base name for the submitted file.
func (rt runtime) fileName(files []domain.ServiceFile) string {
	if len(files) == 0 || files[0].Name == "" {
		return rt.defaultFile
	}
	name := path.Base(strings.ReplaceAll(files[0].Name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return rt.defaultFile
	}
	return name
}
