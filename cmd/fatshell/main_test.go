package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dargueta/fatshell"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appResult struct {
	Stdout string
	Log    string
	Err    error
}

func runApp(t *testing.T, fs afero.Fs, stdin string, args ...string) appResult {
	logOutput := &bytes.Buffer{}
	logger := log.New()
	logger.SetOutput(logOutput)

	stdout := &bytes.Buffer{}
	app := newApp(fs, strings.NewReader(stdin), stdout, logger)
	err := app.Run(append([]string{"fatshell"}, args...))

	return appResult{
		Stdout: stdout.String(),
		Log:    logOutput.String(),
		Err:    err,
	}
}

func TestApp__DefaultsToShell(t *testing.T) {
	result := runApp(t, createTestFs(t), "ls\nexit\n")
	require.NoError(t, result.Err)

	assert.Contains(t, result.Stdout, "hello.txt (13 bytes)")
	assert.Equal(
		t,
		"Opening image fat32.img...\nOK. Type \"help\" for a list of commands.\nSaving...\nBye.\n",
		result.Log)
}

func TestApp__MissingImage(t *testing.T) {
	result := runApp(t, afero.NewMemMapFs(), "", "--image", "nope.img", "shell")
	assert.ErrorIs(t, result.Err, fatshell.ErrNotFound)
	assert.ErrorContains(t, result.Err, "nope.img")
}

func TestApp__ImageFromEnvironment(t *testing.T) {
	fs := createTestFs(t)
	data, err := afero.ReadFile(fs, defaultImagePath)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "other.img", data, 0o644))
	t.Setenv("FATSHELL_IMAGE", "other.img")

	result := runApp(t, fs, "", "cat", "hello.txt")
	require.NoError(t, result.Err)
	assert.Equal(t, "Hello, world!\n", result.Stdout)
}

func TestApp__ListCSV(t *testing.T) {
	result := runApp(t, createTestFs(t), "", "ls", "--format", "csv", "/")
	require.NoError(t, result.Err)

	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "name,type,size,modified", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "hello.txt,file,13,2023-05-17T13:45:30"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "docs,dir,0,2023-05-17T13:45:30"), lines[2])
}

func TestApp__ListBadFormat(t *testing.T) {
	result := runApp(t, createTestFs(t), "", "ls", "--format", "xml")
	assert.ErrorIs(t, result.Err, fatshell.ErrInvalidArgument)
}

func TestApp__TouchThenCat(t *testing.T) {
	fs := createTestFs(t)

	result := runApp(t, fs, "", "touch", "docs/a.txt", "hi")
	require.NoError(t, result.Err)
	assert.Contains(t, result.Log, "File created.")

	result = runApp(t, fs, "", "cat", "/docs/a.txt")
	require.NoError(t, result.Err)
	assert.Equal(t, "hi\n", result.Stdout)
}

func TestApp__Put(t *testing.T) {
	fs := createTestFs(t)
	require.NoError(t, afero.WriteFile(fs, "host.txt", []byte("from the host\n"), 0o644))

	result := runApp(t, fs, "", "put", "copy.txt", "host.txt")
	require.NoError(t, result.Err)

	result = runApp(t, fs, "", "cat", "copy.txt")
	require.NoError(t, result.Err)
	assert.Equal(t, "from the host\n", result.Stdout)

	result = runApp(t, fs, "", "put", "x.txt", "missing-host-file")
	assert.ErrorIs(t, result.Err, fatshell.ErrIOFailed)
}

func TestApp__ReadOnlyFlag(t *testing.T) {
	fs := createTestFs(t)
	before, err := afero.ReadFile(fs, defaultImagePath)
	require.NoError(t, err)

	result := runApp(t, fs, "", "--read-only", "touch", "a.txt", "hi")
	assert.ErrorIs(t, result.Err, fatshell.ErrReadOnlyFileSystem)

	after, err := afero.ReadFile(fs, defaultImagePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApp__Info(t *testing.T) {
	result := runApp(t, createTestFs(t), "", "info")
	require.NoError(t, result.Err)
	assert.True(t, strings.HasPrefix(result.Stdout, "Info:\n"))
	assert.Contains(t, result.Stdout, " - Total Sectors: 2048")
}

func TestApp__BadVerbosity(t *testing.T) {
	result := runApp(t, createTestFs(t), "", "--verbose", "7", "info")
	assert.Error(t, result.Err)
}

func TestSetupLogging(t *testing.T) {
	logger := log.New()

	require.NoError(t, setupLogging(logger, 0, true))
	assert.Equal(t, log.ErrorLevel, logger.GetLevel())

	require.NoError(t, setupLogging(logger, 1, false))
	assert.Equal(t, log.InfoLevel, logger.GetLevel())
	assert.IsType(t, &infoFormatter{}, logger.Formatter)

	require.NoError(t, setupLogging(logger, 2, true))
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
	assert.Same(t, defaultLogFormatter, logger.Formatter)

	require.NoError(t, setupLogging(logger, 3, true))
	assert.Equal(t, log.TraceLevel, logger.GetLevel())

	assert.Error(t, setupLogging(logger, -1, true))
}
