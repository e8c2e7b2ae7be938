package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dargueta/fatshell"
	"github.com/mattn/go-shellwords"
	log "github.com/sirupsen/logrus"
)

type shellCommand struct {
	usage       string
	description string
	run         func(shell *Shell, args []string) error
}

var shellCommands map[string]shellCommand

func init() {
	// Assigned here rather than in the declaration since `help` refers back to
	// the map.
	shellCommands = map[string]shellCommand{
		"ls": {
			usage:       "ls [PATH]",
			description: "List a directory",
			run:         (*Shell).list,
		},
		"cd": {
			usage:       "cd PATH",
			description: "Change the working directory",
			run:         (*Shell).changeDir,
		},
		"cat": {
			usage:       "cat FILE",
			description: "Print the contents of a file",
			run:         (*Shell).cat,
		},
		"touch": {
			usage:       "touch FILE [TEXT...]",
			description: "Create a file holding TEXT",
			run:         (*Shell).touch,
		},
		"info": {
			usage:       "info",
			description: "Show the volume geometry",
			run:         (*Shell).info,
		},
		"pwd": {
			usage:       "pwd",
			description: "Print the working directory",
			run:         (*Shell).pwd,
		},
		"help": {
			usage:       "help",
			description: "Show this message",
			run:         (*Shell).help,
		},
		"exit": {
			usage:       "exit",
			description: "Save changes and leave the shell",
			run:         (*Shell).exit,
		},
		"quit": {
			usage:       "quit",
			description: "Same as exit",
			run:         (*Shell).exit,
		},
	}
}

// Shell is an interactive command loop over a mounted image. Errors from
// commands are printed and the loop keeps going.
type Shell struct {
	session fatshell.Driver
	input   *bufio.Scanner
	output  io.Writer
	logger  log.FieldLogger
	line    string
	done    bool
}

func NewShell(session fatshell.Driver, input io.Reader, output io.Writer, logger log.FieldLogger) *Shell {
	return &Shell{
		session: session,
		input:   bufio.NewScanner(input),
		output:  output,
		logger:  logger,
	}
}

func (shell *Shell) prompt() {
	fmt.Fprintf(shell.output, "%s> ", shell.session.WorkingDirectory())
}

// Run reads and executes commands until `exit`, `quit`, or the end of the
// input.
func (shell *Shell) Run() error {
	for !shell.done {
		shell.prompt()
		if !shell.input.Scan() {
			fmt.Fprintln(shell.output)
			break
		}

		err := shell.Execute(shell.input.Text())
		if err != nil {
			fmt.Fprintf(shell.output, "Error: %s\n", err.Error())
		}
	}
	return shell.input.Err()
}

// Execute runs a single command line. Blank lines do nothing.
func (shell *Shell) Execute(line string) error {
	args, err := shellwords.Parse(line)
	if err != nil {
		return fatshell.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("can't parse command line: %s", err.Error()))
	}
	if len(args) == 0 {
		return nil
	}
	shell.line = line

	command, ok := shellCommands[args[0]]
	if !ok {
		return fatshell.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown command %q; type \"help\" for a list of commands", args[0]))
	}

	shell.logger.WithField("args", args).Trace("running command")
	return command.run(shell, args[1:])
}

func usageError(name string) error {
	return fatshell.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("usage: %s", shellCommands[name].usage))
}

func (shell *Shell) list(args []string) error {
	path := "."
	if len(args) > 1 {
		return usageError("ls")
	} else if len(args) == 1 {
		path = args[0]
	}

	entries, err := shell.session.ReadDir(path)
	if err != nil {
		return err
	}
	return writeListing(shell.output, entries, listingFormatText)
}

func (shell *Shell) changeDir(args []string) error {
	if len(args) != 1 {
		return usageError("cd")
	}
	return shell.session.ChangeDir(args[0])
}

func (shell *Shell) cat(args []string) error {
	if len(args) != 1 {
		return usageError("cat")
	}

	contents, err := shell.session.ReadFile(args[0])
	if err != nil {
		return err
	}
	return writeContents(shell.output, contents)
}

// writeContents prints file contents, making sure the output ends with a
// newline.
func writeContents(output io.Writer, contents []byte) error {
	_, err := output.Write(contents)
	if err == nil && (len(contents) == 0 || contents[len(contents)-1] != '\n') {
		_, err = io.WriteString(output, "\n")
	}
	return err
}

func (shell *Shell) touch(args []string) error {
	if len(args) < 1 {
		return usageError("touch")
	}

	// The text is taken verbatim from the command line so spacing is kept.
	text := strings.TrimSpace(skipWords(shell.line, 2))
	err := shell.session.WriteFile(args[0], []byte(text))
	if err != nil {
		return err
	}
	fmt.Fprintln(shell.output, "File created.")
	return nil
}

// skipWords returns what follows the first `count` words of `line`. Words are
// delimited the way shellwords delimits them: by unquoted, unescaped blanks.
func skipWords(line string, count int) string {
	i := 0
	for word := 0; word < count; word++ {
		for i < len(line) && isBlank(line[i]) {
			i++
		}

		var quote byte
	scan:
		for ; i < len(line); i++ {
			ch := line[i]
			switch {
			case ch == '\\' && quote != '\'':
				i++
			case quote != 0:
				if ch == quote {
					quote = 0
				}
			case ch == '"' || ch == '\'':
				quote = ch
			case isBlank(ch):
				break scan
			}
		}
	}

	if i >= len(line) {
		return ""
	}
	return line[i:]
}

func isBlank(ch byte) bool {
	return ch == ' ' || ch == '\t'
}

func (shell *Shell) info(args []string) error {
	fmt.Fprintln(shell.output, shell.session.Info())
	return nil
}

func (shell *Shell) pwd(args []string) error {
	fmt.Fprintln(shell.output, shell.session.WorkingDirectory())
	return nil
}

func (shell *Shell) help(args []string) error {
	names := make([]string, 0, len(shellCommands))
	for name := range shellCommands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		command := shellCommands[name]
		fmt.Fprintf(shell.output, "  %-22s %s\n", command.usage, command.description)
	}
	return nil
}

func (shell *Shell) exit(args []string) error {
	shell.done = true
	return nil
}
