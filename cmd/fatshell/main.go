package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dargueta/fatshell"
	"github.com/dargueta/fatshell/driver"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

const defaultImagePath = "fat32.img"

func main() {
	logger := log.New()
	logger.SetOutput(os.Stderr)

	app := newApp(afero.NewOsFs(), os.Stdin, os.Stdout, logger)
	err := app.Run(os.Args)
	if err != nil {
		logger.Fatalf("fatal error: %s", err.Error())
	}
}

// newApp builds the command line interface. All image and host file access
// goes through `fs`.
func newApp(fs afero.Fs, stdin io.Reader, stdout io.Writer, logger *log.Logger) *cli.App {
	app := &cli.App{
		Name:      "fatshell",
		Usage:     "Browse and modify FAT32 disk images",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: logger.Out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "path to the FAT32 image",
				Value:   defaultImagePath,
				EnvVars: []string{"FATSHELL_IMAGE"},
			},
			&cli.BoolFlag{
				Name:    "read-only",
				Usage:   "never modify the image",
				EnvVars: []string{"FATSHELL_READ_ONLY"},
			},
			&cli.IntFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log verbosity, from 0 (errors only) to 3 (trace)",
				Value:   1,
				EnvVars: []string{"FATSHELL_VERBOSE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			return setupLogging(logger, ctx.Int("verbose"), ctx.IsSet("verbose"))
		},
		Action: func(ctx *cli.Context) error {
			return runShell(ctx, fs, logger)
		},
		Commands: []*cli.Command{
			{
				Name:  "shell",
				Usage: "Start an interactive shell (the default)",
				Action: func(ctx *cli.Context) error {
					return runShell(ctx, fs, logger)
				},
			},
			{
				Name:      "ls",
				Usage:     "List a directory",
				ArgsUsage: "[PATH]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "output format, \"text\" or \"csv\"",
						Value: listingFormatText,
					},
				},
				Action: func(ctx *cli.Context) error {
					path := "/"
					if ctx.Args().Len() > 1 {
						return cli.ShowSubcommandHelp(ctx)
					} else if ctx.Args().Present() {
						path = ctx.Args().First()
					}

					return withSession(ctx, fs, logger, false, func(session *driver.Session) error {
						entries, err := session.ReadDir(path)
						if err != nil {
							return err
						}
						return writeListing(ctx.App.Writer, entries, ctx.String("format"))
					})
				},
			},
			{
				Name:      "cat",
				Usage:     "Print a file",
				ArgsUsage: "PATH",
				Action: func(ctx *cli.Context) error {
					if ctx.Args().Len() != 1 {
						return cli.ShowSubcommandHelp(ctx)
					}

					return withSession(ctx, fs, logger, false, func(session *driver.Session) error {
						contents, err := session.ReadFile(ctx.Args().First())
						if err != nil {
							return err
						}
						return writeContents(ctx.App.Writer, contents)
					})
				},
			},
			{
				Name:      "touch",
				Usage:     "Create a file holding the given text",
				ArgsUsage: "PATH [TEXT...]",
				Action: func(ctx *cli.Context) error {
					if !ctx.Args().Present() {
						return cli.ShowSubcommandHelp(ctx)
					}

					args := ctx.Args().Slice()
					text := strings.TrimSpace(strings.Join(args[1:], " "))
					return withSession(ctx, fs, logger, true, func(session *driver.Session) error {
						err := session.WriteFile(args[0], []byte(text))
						if err != nil {
							return err
						}
						logger.Info("File created.")
						return nil
					})
				},
			},
			{
				Name:      "put",
				Usage:     "Copy a file from the host into the image",
				ArgsUsage: "PATH HOST_FILE",
				Action: func(ctx *cli.Context) error {
					if ctx.Args().Len() != 2 {
						return cli.ShowSubcommandHelp(ctx)
					}

					hostPath := ctx.Args().Get(1)
					data, err := afero.ReadFile(fs, hostPath)
					if err != nil {
						return fatshell.ErrIOFailed.Wrap(err)
					}

					return withSession(ctx, fs, logger, true, func(session *driver.Session) error {
						err := session.WriteFile(ctx.Args().First(), data)
						if err != nil {
							return err
						}
						logger.Infof("Copied %d bytes from %s.", len(data), hostPath)
						return nil
					})
				},
			},
			{
				Name:  "info",
				Usage: "Show the volume geometry",
				Action: func(ctx *cli.Context) error {
					return withSession(ctx, fs, logger, false, func(session *driver.Session) error {
						_, err := fmt.Fprintln(ctx.App.Writer, session.Info())
						return err
					})
				},
			},
		},
	}
	return app
}

// mountFlags gives the flags to open the image with. `--read-only` wins over a
// command wanting to write.
func mountFlags(ctx *cli.Context, wantWrite bool) fatshell.MountFlags {
	if wantWrite && !ctx.Bool("read-only") {
		return fatshell.MountFlagsReadWrite
	}
	return fatshell.MountFlagsReadOnly
}

// withSession opens the image, calls `fn`, and closes the image again. Errors
// from `fn` and from closing are combined.
func withSession(
	ctx *cli.Context,
	fs afero.Fs,
	logger *log.Logger,
	wantWrite bool,
	fn func(session *driver.Session) error,
) error {
	imagePath := ctx.String("image")
	session, err := driver.Open(fs, imagePath, mountFlags(ctx, wantWrite), logger)
	if err != nil {
		return fmt.Errorf("can't open %s: %w", imagePath, err)
	}

	var result *multierror.Error
	if err = fn(session); err != nil {
		result = multierror.Append(result, err)
	}
	if err = session.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func runShell(ctx *cli.Context, fs afero.Fs, logger *log.Logger) error {
	imagePath := ctx.String("image")
	logger.Infof("Opening image %s...", imagePath)

	session, err := driver.Open(fs, imagePath, mountFlags(ctx, true), logger)
	if err != nil {
		return fmt.Errorf("can't open %s: %w", imagePath, err)
	}
	logger.Info("OK. Type \"help\" for a list of commands.")

	shell := NewShell(session, ctx.App.Reader, ctx.App.Writer, logger)
	runErr := shell.Run()

	logger.Info("Saving...")
	closeErr := session.Close()
	if runErr != nil || closeErr != nil {
		return multierror.Append(runErr, closeErr).ErrorOrNil()
	}

	logger.Info("Bye.")
	return nil
}
