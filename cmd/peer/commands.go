package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dontdude/coderoom/internal/domain"
)

type commandKind int

const (
	cmdLanguage commandKind = iota + 1
	cmdRun
	cmdWho
	cmdShow
	cmdQuit
	cmdHelp
)

type command struct {
	kind     commandKind
	language domain.Language
	stdin    string
}

const usage = `commands:
  lang <tag>     switch the room language (javascript, python, java, cpp, c, go, ruby)
  run [stdin]    execute the buffer, optionally feeding stdin (\n for newlines)
  who            list room members
  show           print the buffer
  quit           leave the room`

var errEmptyCommand = errors.New("empty command")

// parseCommand reads one line of peer input.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errEmptyCommand
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "lang", "language":
		if rest == "" {
			return command{}, errors.New("usage: lang <tag>")
		}
		lang, err := domain.ParseLanguage(strings.ToLower(rest))
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdLanguage, language: lang}, nil
	case "run":
		return command{kind: cmdRun, stdin: strings.ReplaceAll(rest, `\n`, "\n")}, nil
	case "who":
		return command{kind: cmdWho}, nil
	case "show":
		return command{kind: cmdShow}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q, type help", name)
	}
}

// formatMembers renders the member list, marking the local participant.
func formatMembers(members []domain.Participant, selfID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d in room:\n", len(members))
	for _, m := range members {
		marker := ""
		if m.ConnectionID == selfID {
			marker = " (you)"
		}
		fmt.Fprintf(&b, "  %s%s\n", m.DisplayName, marker)
	}
	return b.String()
}
