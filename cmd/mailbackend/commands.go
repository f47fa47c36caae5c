package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"git.sr.ht/~sircmpwn/getopt"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/config"
	"git.sr.ht/~rjarry/mailbackend/lib/autoconfig"
	"git.sr.ht/~rjarry/mailbackend/lib/storage"
	"git.sr.ht/~rjarry/mailbackend/lib/trust"
	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

const networkTimeout = 30 * time.Second

type usageError string

func (e usageError) Error() string { return string(e) }

type App struct {
	conf     *config.Config
	registry *backend.Registry
	storages *storage.Factory
	trust    *trust.Store

	in  io.Reader
	out io.Writer
}

type command func(a *App, ctx context.Context, args []string) error

var commands = map[string]command{
	"schemes":    (*App).schemes,
	"decode":     (*App).decode,
	"encode":     (*App).encode,
	"check":      (*App).check,
	"rewrite":    (*App).rewrite,
	"save-draft": (*App).saveDraft,
	"send":       (*App).send,
	"export":     (*App).export,
	"trust":      (*App).pin,
	"watch":      (*App).watch,
	"discover":   (*App).discover,
}

// run executes args[0] with args (getopt style, args[0] is the command).
func (a *App) run(ctx context.Context, args []string) error {
	cmd, ok := commands[args[0]]
	if !ok {
		return usageError(fmt.Sprintf("unknown command %q", args[0]))
	}
	return cmd(a, ctx, args)
}

func (a *App) schemes(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("schemes takes no arguments")
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STORE\tTRANSPORT\tSHARED")
	for _, scheme := range a.registry.Schemes() {
		f, err := a.registry.Lookup(scheme)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%v\n", f.Scheme(), f.TransportURIPrefix(), f.SharedEndpoint())
	}
	return w.Flush()
}

func transportFlag(args []string) (bool, []string, error) {
	opts, optind, err := getopt.Getopts(args, "t")
	if err != nil {
		return false, nil, usageError(err.Error())
	}
	return len(opts) > 0, args[optind:], nil
}

func (a *App) decode(_ context.Context, args []string) error {
	transport, args, err := transportFlag(args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return usageError("decode expects exactly one URI")
	}
	var s models.ServerSettings
	if transport {
		f, err := a.registry.ForTransportURI(args[0])
		if err != nil {
			return err
		}
		s, err = f.DecodeTransportURI(args[0])
		if err != nil {
			return err
		}
	} else {
		f, err := a.registry.ForStoreURI(args[0])
		if err != nil {
			return err
		}
		s, err = f.DecodeStoreURI(args[0])
		if err != nil {
			return err
		}
	}
	printSettings(a.out, s)
	return nil
}

func printSettings(out io.Writer, s models.ServerSettings) {
	w := tabwriter.NewWriter(out, 0, 4, 1, ' ', 0)
	fmt.Fprintf(w, "scheme\t%s\n", s.Scheme)
	fmt.Fprintf(w, "host\t%s\n", s.Host)
	if s.Port != 0 {
		fmt.Fprintf(w, "port\t%d\n", s.Port)
	} else {
		fmt.Fprintf(w, "port\tdefault\n")
	}
	fmt.Fprintf(w, "security\t%s\n", s.Security.Token())
	fmt.Fprintf(w, "auth\t%s\n", s.Auth.Token())
	fmt.Fprintf(w, "username\t%s\n", s.Username)
	if s.Password != "" {
		fmt.Fprintf(w, "password\t***\n")
	}
	for _, k := range s.ExtraKeys() {
		fmt.Fprintf(w, "%s\t%q\n", k, s.Extra[k])
	}
	w.Flush()
}

// parseSettings builds settings from key=value pairs. Unknown keys become
// extra parameters.
func parseSettings(pairs []string) (models.ServerSettings, error) {
	var s models.ServerSettings
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return s, usageError(fmt.Sprintf("%q: expected key=value", pair))
		}
		var err error
		switch key {
		case "scheme":
			s.Scheme = value
		case "host":
			s.Host = value
		case "port":
			s.Port, err = strconv.Atoi(value)
		case "security":
			s.Security, err = models.ParseConnectionSecurity(value)
		case "auth":
			s.Auth, err = models.ParseAuthType(value)
		case "username":
			s.Username = value
		case "password":
			s.Password = value
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]string)
			}
			s.Extra[key] = value
		}
		if err != nil {
			return s, fmt.Errorf("%s: %w", key, err)
		}
	}
	if s.Scheme == "" {
		return s, usageError("scheme=<name> is required")
	}
	return s, nil
}

func (a *App) encode(_ context.Context, args []string) error {
	transport, args, err := transportFlag(args)
	if err != nil {
		return err
	}
	s, err := parseSettings(args)
	if err != nil {
		return err
	}
	var uri string
	if transport {
		f, err := a.registry.ForTransportURI(s.Scheme + "://")
		if err != nil {
			return err
		}
		uri, err = f.CreateTransportURI(s)
		if err != nil {
			return err
		}
	} else {
		f, err := a.registry.Lookup(s.Scheme)
		if err != nil {
			return err
		}
		uri, err = f.CreateStoreURI(s)
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(a.out, uri)
	return nil
}

func (a *App) check(ctx context.Context, args []string) error {
	opts, optind, err := getopt.Getopts(args, "n")
	if err != nil {
		return usageError(err.Error())
	}
	if len(args[optind:]) != 0 {
		return usageError("check takes no arguments")
	}
	network := len(opts) > 0

	var failed int
	for _, acct := range a.conf.Accounts {
		if err := a.checkAccount(ctx, acct, network); err != nil {
			fmt.Fprintf(a.out, "%s: FAILED: %v\n", acct.Name(), err)
			failed++
			continue
		}
		fmt.Fprintf(a.out, "%s: ok\n", acct.Name())
	}
	if failed > 0 {
		return fmt.Errorf("%d account(s) failed", failed)
	}
	return nil
}

func (a *App) checkAccount(ctx context.Context, acct *config.AccountConfig, network bool) error {
	b, err := a.registry.CreateBackend(acct)
	if err != nil {
		return err
	}
	defer b.Close()

	b.Log.Debugf("store: %s", b.Store.Settings().Redacted())
	b.Log.Debugf("transport: %s", b.Transport.Settings().Redacted())
	if !network {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if err := b.Store.CheckSettings(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := b.Transport.CheckSettings(ctx); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	return nil
}

// rewrite prints accounts.conf lines with canonical URIs. The raw values are
// used so that injected credentials are never printed.
func (a *App) rewrite(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("rewrite takes no arguments")
	}
	for i, acct := range a.conf.Accounts {
		f, err := a.registry.ForStoreURI(acct.Source.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", acct.ID(), err)
		}
		s, err := f.DecodeStoreURI(acct.Source.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", acct.ID(), err)
		}
		source, err := f.CreateStoreURI(s)
		if err != nil {
			return fmt.Errorf("%s: %w", acct.ID(), err)
		}
		if i > 0 {
			fmt.Fprintln(a.out)
		}
		fmt.Fprintf(a.out, "[%s]\nsource = %s\n", acct.ID(), source)
		if acct.Outgoing.Value == "" {
			continue
		}
		t, err := f.DecodeTransportURI(acct.Outgoing.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", acct.ID(), err)
		}
		outgoing, err := f.CreateTransportURI(t)
		if err != nil {
			return fmt.Errorf("%s: %w", acct.ID(), err)
		}
		fmt.Fprintf(a.out, "outgoing = %s\n", outgoing)
	}
	return nil
}

func (a *App) account() (*config.AccountConfig, error) {
	if len(a.conf.Accounts) == 0 {
		return nil, errors.New("no account configured")
	}
	return a.conf.Accounts[0], nil
}

func (a *App) openBackend() (*backend.Backend, error) {
	acct, err := a.account()
	if err != nil {
		return nil, err
	}
	return a.registry.CreateBackend(acct)
}

func (a *App) saveDraft(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("save-draft reads the message on stdin")
	}
	b, err := a.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	id, err := b.Store.SaveDraft(ctx, a.in)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, id)
	return nil
}

func (a *App) send(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("send reads the message on stdin")
	}
	b, err := a.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if err := b.Transport.Send(ctx, a.in); err != nil {
		return err
	}
	b.Log.Infof("message sent")
	return nil
}

func (a *App) export(_ context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("export expects a folder name")
	}
	acct, err := a.account()
	if err != nil {
		return err
	}
	st, err := a.storages.Open(acct)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.ExportMbox(args[1], a.out)
}

func (a *App) pin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("trust expects host:port")
	}
	host, portStr, err := net.SplitHostPort(args[1])
	if err != nil {
		return usageError(err.Error())
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return usageError(fmt.Sprintf("invalid port %q", portStr))
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: networkTimeout},
		Config: &tls.Config{
			ServerName: host,
			// the point is to look at a certificate we do not trust yet
			InsecureSkipVerify: true, //nolint:gosec
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", args[1])
	if err != nil {
		return err
	}
	defer conn.Close()
	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return errors.New("server presented no certificate")
	}
	leaf := certs[0]
	fmt.Fprintf(a.out, "subject: %s\nissuer: %s\nexpires: %s\nsha256: %s\n",
		leaf.Subject, leaf.Issuer, leaf.NotAfter.Format(time.RFC3339),
		trust.Fingerprint(leaf))
	a.trust.Accept(host, port, leaf)
	if err := a.trust.SaveFile(a.conf.General.TrustFile); err != nil {
		return err
	}
	log.Infof("pinned %s for %s", trust.Fingerprint(leaf), args[1])
	return nil
}

func (a *App) printFolders() {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, acct := range a.conf.Accounts {
		var roles []string
		for _, role := range models.FolderRoles {
			if name, ok := acct.SpecialFolder(role); ok {
				roles = append(roles, fmt.Sprintf("%s=%q", role, name))
			}
		}
		fmt.Fprintf(w, "%s\t%s\n", acct.ID(), strings.Join(roles, " "))
	}
	w.Flush()
}

func (a *App) watch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("watch takes no arguments")
	}
	a.printFolders()
	if err := a.conf.Watch(ctx, a.printFolders); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// discover prints an accounts.conf section for the given address.
func (a *App) discover(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("discover expects a mail address")
	}
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	r, err := autoconfig.Discover(ctx, args[1])
	if err != nil {
		return err
	}
	return a.printDiscovered(r)
}

func (a *App) printDiscovered(r *autoconfig.Result) error {
	f, err := a.registry.Lookup(r.Source.Scheme)
	if err != nil {
		return err
	}
	source, err := f.CreateStoreURI(r.Source)
	if err != nil {
		return err
	}
	outgoing, err := f.CreateTransportURI(r.Outgoing)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "# found via %s\n[%s]\nsource = %s\noutgoing = %s\n",
		r.Method, r.Source.Username, source, outgoing)
	return nil
}
