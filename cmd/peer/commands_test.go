package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dontdude/coderoom/internal/domain"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr string
	}{
		{line: "lang python", want: command{kind: cmdLanguage, language: domain.Python}},
		{line: "  LANG  Go ", want: command{kind: cmdLanguage, language: domain.Go}},
		{line: "lang", wantErr: "usage: lang <tag>"},
		{line: "lang cobol", wantErr: `unsupported language "cobol"`},
		{line: "run", want: command{kind: cmdRun}},
		{line: `run 3\n4`, want: command{kind: cmdRun, stdin: "3\n4"}},
		{line: "who", want: command{kind: cmdWho}},
		{line: "show", want: command{kind: cmdShow}},
		{line: "exit", want: command{kind: cmdQuit}},
		{line: "?", want: command{kind: cmdHelp}},
		{line: "dance", wantErr: `unknown command "dance"`},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Empty(t *testing.T) {
	_, err := parseCommand("   ")
	assert.ErrorIs(t, err, errEmptyCommand)
}

func TestFormatMembers(t *testing.T) {
	members := []domain.Participant{
		{ConnectionID: "a", DisplayName: "alice"},
		{ConnectionID: "b", DisplayName: "bob"},
	}

	got := formatMembers(members, "b")

	assert.Equal(t, "2 in room:\n  alice\n  bob (you)\n", got)
}
