package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"git.sr.ht/~sircmpwn/getopt"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/backend/imap"
	"git.sr.ht/~rjarry/mailbackend/backend/webdav"
	"git.sr.ht/~rjarry/mailbackend/config"
	"git.sr.ht/~rjarry/mailbackend/lib/storage"
	"git.sr.ht/~rjarry/mailbackend/lib/trust"
	"git.sr.ht/~rjarry/mailbackend/log"
)

const usageText = `usage: mailbackend [-v] [-C <dir>] [-a <account>[,...]] [-l <level>] <command> [args...]

commands:
  schemes                  list the supported protocols
  decode [-t] <uri>        print the settings of a store (or transport) URI
  encode [-t] key=val...   build a URI from scheme, host, port, security,
                           auth, username, password and extra parameters
  check [-n]               build the backend of every account, with -n also
                           connect to the servers
  rewrite                  print the canonical URIs of every account
  save-draft               upload the message read on stdin as a draft
  send                     submit the message read on stdin
  export <folder>          write a locally stored folder as mbox
  trust <host:port>        pin the certificate presented by a server
  watch                    print the folders of every account whenever
                           accounts.conf changes
  discover <address>       look up the servers of a mail address`

func usage(msg string) {
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	fmt.Fprintln(os.Stderr, usageText)
	os.Exit(1)
}

func main() {
	defer log.PanicHandler()

	opts, optind, err := getopt.Getopts(os.Args, "vC:a:l:")
	if err != nil {
		usage("error: " + err.Error())
	}
	var (
		verbose bool
		root    string
		accts   []string
		level   string
	)
	for _, opt := range opts {
		switch opt.Option {
		case 'v':
			verbose = true
		case 'C':
			root = opt.Value
		case 'a':
			for _, name := range strings.Split(opt.Value, ",") {
				if name = strings.TrimSpace(name); name != "" {
					accts = append(accts, name)
				}
			}
		case 'l':
			level = opt.Value
		}
	}
	args := os.Args[optind:]
	if len(args) == 0 {
		usage("error: missing command")
	}

	conf, err := config.Load(root, accts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1) //nolint:gocritic // PanicHandler does not need to run as it's not a panic
	}
	if level != "" {
		l, err := log.ParseLevel(level)
		if err != nil {
			usage("error: " + err.Error())
		}
		conf.General.LogLevel = l
	}
	if err := conf.InitLogging(verbose); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	app, err := newApp(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	app.in = os.Stdin
	app.out = os.Stdout

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx, args); err != nil {
		if _, ok := err.(usageError); ok {
			usage("error: " + err.Error())
		}
		log.Errorf("%s: %v", args[0], err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newApp wires the registry shared by every command.
func newApp(conf *config.Config) (*App, error) {
	pins, err := trust.LoadFile(conf.General.TrustFile)
	if err != nil {
		return nil, err
	}
	storages := storage.NewFactory(conf.General.StorageDir)
	registry, err := backend.NewRegistry(
		webdav.NewFactory(storages, pins),
		imap.NewFactory(storages, pins),
	)
	if err != nil {
		return nil, err
	}
	return &App{
		conf:     conf,
		registry: registry,
		storages: storages,
		trust:    pins,
	}, nil
}
