package domain

import "fmt"

// Language is the tag a room uses to select syntax and execution runtime.
type Language string

const (
	JavaScript Language = "javascript"
	Python     Language = "python"
	Java       Language = "java"
	Cpp        Language = "cpp"
	C          Language = "c"
	Go         Language = "go"
	Ruby       Language = "ruby"
)

// DefaultLanguage is the tag a fresh client starts with.
const DefaultLanguage = JavaScript

var languages = []Language{JavaScript, Python, Java, Cpp, C, Go, Ruby}

// Languages returns the fixed set of selectable languages in display order.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// Valid reports whether l is one of the selectable languages.
func (l Language) Valid() bool {
	for _, known := range languages {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLanguage converts a wire value into a Language.
func ParseLanguage(s string) (Language, error) {
	l := Language(s)
	if !l.Valid() {
		return "", fmt.Errorf("unsupported language %q", s)
	}
	return l, nil
}

var templates = map[Language]string{
	JavaScript: "console.log(\"Hello, World!\");\n",
	Python:     "print(\"Hello, World!\")\n",
	Java: `public class Main {
    public static void main(String[] args) {
        System.out.println("Hello, World!");
    }
}
`,
	Cpp: `#include <iostream>

int main() {
    std::cout << "Hello, World!" << std::endl;
    return 0;
}
`,
	C: `#include <stdio.h>

int main() {
    printf("Hello, World!\n");
    return 0;
}
`,
	Go: `package main

import "fmt"

func main() {
	fmt.Println("Hello, World!")
}
`,
	Ruby: "puts \"Hello, World!\"\n",
}

// Template returns the default "hello world" content for a language.
// Unknown tags get the javascript template.
func Template(l Language) string {
	if t, ok := templates[l]; ok {
		return t
	}
	return templates[JavaScript]
}
