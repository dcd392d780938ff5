package execution

import "github.com/dontdude/coderoom/internal/domain"

type runtime struct {
	language string
	version  string
}

// runtimes pins each tag to the execution service's language id and version.
var runtimes = map[domain.Language]runtime{
	domain.JavaScript: {language: "javascript", version: "18.15.0"},
	domain.Python:     {language: "python", version: "3.10.0"},
	domain.Java:       {language: "java", version: "15.0.2"},
	domain.Cpp:        {language: "c++", version: "10.2.0"},
	domain.C:          {language: "c", version: "10.2.0"},
	domain.Go:         {language: "go", version: "1.16.2"},
	domain.Ruby:       {language: "ruby", version: "3.0.1"},
}

var fileNames = map[domain.Language]string{
	domain.JavaScript: "main.js",
	domain.Python:     "main.py",
	domain.Java:       "Main.java",
	domain.Cpp:        "main.cpp",
	domain.C:          "main.c",
	domain.Go:         "main.go",
	domain.Ruby:       "main.rb",
}

// Runtime returns the service language id and version for a tag.
// Unknown tags resolve to the javascript runtime.
func Runtime(lang domain.Language) (language, version string) {
	rt, ok := runtimes[lang]
	if !ok {
		rt = runtimes[domain.JavaScript]
	}
	return rt.language, rt.version
}

// FileName returns the canonical source file name for a tag.
// Unknown tags resolve to the javascript file name.
func FileName(lang domain.Language) string {
	if name, ok := fileNames[lang]; ok {
		return name
	}
	return fileNames[domain.JavaScript]
}

// BuildRequest resolves a buffer and its language tag into an execution request.
func BuildRequest(lang domain.Language, source, stdin string) domain.ExecutionRequest {
	if !lang.Valid() {
		lang = domain.JavaScript
	}
	serviceLanguage, version := Runtime(lang)
	return domain.ExecutionRequest{
		Language:        lang,
		ServiceLanguage: serviceLanguage,
		RuntimeVersion:  version,
		FileName:        FileName(lang),
		SourceContent:   source,
		Stdin:           stdin,
	}
}
