package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dargueta/fatshell"
	"github.com/dargueta/fatshell/driver"
	fstest "github.com/dargueta/fatshell/testing"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestFs returns an in-memory file system holding "fat32.img" with this
// tree:
//
//	/hello.txt  "Hello, world!"
//	/docs/
func createTestFs(t *testing.T) afero.Fs {
	image := fstest.NewDefaultFAT32Image(t)
	image.AddFile(2, 0, "HELLO   TXT", 3, []byte("Hello, world!"))
	image.AddDirectory(2, 1, "DOCS       ", 4)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, defaultImagePath, image.Data, 0o644))
	return fs
}

func runShellScript(t *testing.T, fs afero.Fs, script string) string {
	logger, _ := test.NewNullLogger()
	session, err := driver.Open(fs, defaultImagePath, fatshell.MountFlagsReadWrite, logger)
	require.NoError(t, err)

	output := &bytes.Buffer{}
	shell := NewShell(session, strings.NewReader(script), output, logger)
	require.NoError(t, shell.Run())
	require.NoError(t, session.Close())
	return output.String()
}

func TestShell__List(t *testing.T) {
	output := runShellScript(t, createTestFs(t), "ls\n")

	assert.Equal(
		t,
		"/>       hello.txt (13 bytes)\n<DIR> docs (0 bytes)\n/> \n",
		output)
}

func TestShell__CdAndCat(t *testing.T) {
	output := runShellScript(t, createTestFs(t), "cd docs\npwd\ncat ../hello.txt\ncd ..\nexit\n")

	assert.Equal(
		t,
		"/> /docs> /docs\n/docs> Hello, world!\n/docs> /> ",
		output)
}

func TestShell__TouchPersists(t *testing.T) {
	fs := createTestFs(t)
	output := runShellScript(t, fs, "touch docs/note.txt \"some text\" here\nquit\n")
	assert.Contains(t, output, "File created.")

	output = runShellScript(t, fs, "cat docs/NOTE.TXT\n")
	assert.Contains(t, output, "\"some text\" here\n")
}

// The text after the file name is stored as typed, minus surrounding blanks.
func TestShell__TouchKeepsSpacing(t *testing.T) {
	fs := createTestFs(t)
	runShellScript(t, fs, "touch  note.txt   two  spaces\tand a tab   \n")

	output := runShellScript(t, fs, "cat note.txt\n")
	assert.Equal(t, "/> two  spaces\tand a tab\n/> \n", output)
}

func TestSkipWords(t *testing.T) {
	cases := []struct {
		line     string
		count    int
		expected string
	}{
		{"touch a.txt hello   world", 2, " hello   world"},
		{"touch a.txt", 2, ""},
		{"touch a.txt ", 2, " "},
		{"touch", 2, ""},
		{"  touch \t a.txt  x", 2, "  x"},
		{"touch \"a b.txt\" x  y", 2, " x  y"},
		{"touch 'it\"s' x", 2, " x"},
		{"touch a\\ b.txt x", 2, " x"},
		{"cd docs", 1, " docs"},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.expected, skipWords(tc.line, tc.count), "line: %q", tc.line)
	}
}

// Errors are printed and the shell keeps going.
func TestShell__ErrorsDontStopTheLoop(t *testing.T) {
	script := strings.Join([]string{
		"cat missing.txt",
		"cd hello.txt",
		"cat docs",
		"frobnicate",
		"cd",
		"touch \"unterminated",
		"touch waytoolongname.txt x",
		"pwd",
	}, "\n")
	output := runShellScript(t, createTestFs(t), script)

	lines := strings.Split(output, "\n")
	errorLines := 0
	for _, line := range lines {
		if strings.Contains(line, "Error: ") {
			errorLines++
		}
	}
	assert.Equal(t, 7, errorLines, "wrong number of errors in:\n%s", output)
	assert.Contains(t, output, fatshell.ErrNotFound.Error())
	assert.Contains(t, output, fatshell.ErrNotADirectory.Error())
	assert.Contains(t, output, fatshell.ErrIsADirectory.Error())
	assert.Contains(t, output, "unknown command \"frobnicate\"")
	assert.Contains(t, output, "usage: cd PATH")
	assert.Contains(t, output, fatshell.ErrNameTooLong.Error())

	// `pwd` still ran after all of that.
	assert.Contains(t, output, "/> /\n")
}

func TestShell__Info(t *testing.T) {
	output := runShellScript(t, createTestFs(t), "info\n")
	assert.Contains(t, output, " - Sectors Per FAT: 100")
	assert.Contains(t, output, " - Working Directory: /")
}

func TestShell__Help(t *testing.T) {
	output := runShellScript(t, createTestFs(t), "help\n")
	for name, command := range shellCommands {
		assert.Containsf(t, output, command.usage, "help doesn't mention %q", name)
	}
}

func TestShell__BlankLines(t *testing.T) {
	output := runShellScript(t, createTestFs(t), "\n   \n")
	assert.Equal(t, "/> /> /> \n", output)
}
