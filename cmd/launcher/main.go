// Package main provides the launcher command: it signs into a Blackboard
// portal, opens the configured course's Collaborate Ultra session and leaves
// the browser running for the human.
//
//	launcher [-c CONFIG] class_name
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openlms/collab-launcher/pkg/browser"
	"github.com/openlms/collab-launcher/pkg/collaborate"
	"github.com/openlms/collab-launcher/pkg/config"
	"github.com/openlms/collab-launcher/pkg/logging"
)

const (
	version           = "1.0.0"
	defaultConfigPath = "./blackboard_collaborate.ini"
)

// Exit codes, one per error kind so wrappers can tell a bad config from a
// changed website.
const (
	exitOK         = 0
	exitFailure    = 1
	exitConfig     = 2
	exitLaunch     = 3
	exitNavigation = 4
)

// cliConfig holds the parsed command line.
type cliConfig struct {
	ConfigPath  string
	ClassName   string
	ShowVersion bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	if cli.ShowVersion {
		fmt.Printf("launcher v%s\n", version)
		return exitOK
	}

	// On file setup failure NewLogger still returns a usable stderr-backed
	// logger, which already reported the degradation.
	log, _ := logging.NewLogger("cli")
	defer log.Close()

	class, err := config.Load(cli.ConfigPath, cli.ClassName)
	if err != nil {
		log.Errorf("configuration: %v", err)
		fmt.Fprintf(os.Stderr, "launcher: %v\n", err)
		return exitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	launcher := collaborate.New(class, browser.NewPlaywrightDriver(), log)
	if err := launcher.Run(ctx); err != nil {
		log.Errorf("run: %v", err)
		fmt.Fprintf(os.Stderr, "launcher: %v\n", err)
		return exitCode(err)
	}

	return exitOK
}

// parseFlags parses the command line into a cliConfig.
func parseFlags(args []string) (*cliConfig, error) {
	cli := &cliConfig{}

	fs := flag.NewFlagSet("launcher", flag.ContinueOnError)
	fs.StringVar(&cli.ConfigPath, "c", defaultConfigPath, "configuration file to use")
	fs.StringVar(&cli.ConfigPath, "config", defaultConfigPath, "configuration file to use")
	fs.BoolVar(&cli.ShowVersion, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: launcher [-c CONFIG] class_name\n\n")
		fmt.Fprintf(fs.Output(), "Launches the Blackboard Collaborate Ultra session configured for class_name.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cli.ShowVersion {
		return cli, nil
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("launcher: exactly one class name is required")
	}
	cli.ClassName = fs.Arg(0)

	return cli, nil
}

// exitCode maps an error to its process exit status.
func exitCode(err error) int {
	var configErr *config.ConfigError
	var missingErr *config.MissingFieldError
	var launchErr *collaborate.LaunchError
	var navErr *collaborate.NavigationError

	switch {
	case errors.As(err, &configErr), errors.As(err, &missingErr):
		return exitConfig
	case errors.As(err, &launchErr):
		return exitLaunch
	case errors.As(err, &navErr):
		return exitNavigation
	}
	return exitFailure
}
