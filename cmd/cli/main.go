// Command anonmatch-cli is a command-line client for the matchmaking server.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	grpcserver "github.com/and161185/anonmatch/internal/server/grpc"
)

// ---- token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "anonmatch")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "anonmatch")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tokenFile{AccessToken: tok, ExpiresAt: exp}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (run `token` first)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

type dialOpts struct {
	addr      string
	caPath    string
	insecure  bool // TLS without verification
	plaintext bool // no TLS at all
}

func loadTLS(o dialOpts) (credentials.TransportCredentials, error) {
	switch {
	case o.plaintext:
		return insecure.NewCredentials(), nil
	case o.insecure:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev flag
	case o.caPath == "":
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(o.caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(o dialOpts, bearer string) (*grpc.ClientConn, *grpcserver.Client, error) {
	creds, err := loadTLS(o)
	if err != nil {
		return nil, nil, err
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !o.plaintext}))
	}
	cc, err := grpc.NewClient(o.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, grpcserver.NewClient(cc), nil
}

// ---- output ----

var pj = protojson.MarshalOptions{Multiline: true, Indent: "  ", EmitUnpopulated: true}

func printProto(w io.Writer, m proto.Message) error {
	b, err := pj.Marshal(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

const usageText = `anonmatch-cli
Usage:
  anonmatch-cli -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  token    -id <participant> -key <jwt key> [-ttl 1h]   (saves token)
  match    [-gender G] [-hobby H] [-age-min N -age-max N]
  next     [-gender G] [-hobby H] [-age-min N -age-max N]
  cancel
  stop
  secret   on|off
  partner
  stats
  watch                                                 (streams events)
`

var (
	version   = "dev"
	buildDate = "unknown"
)

var errUsage = errors.New("usage")

// main dispatches subcommands; a failed RPC exits 1, bad usage exits 2.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	default:
		fail(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var o dialOpts
	gf := flag.NewFlagSet("anonmatch-cli", flag.ContinueOnError)
	gf.SetOutput(io.Discard)
	gf.StringVar(&o.addr, "addr", "localhost:8443", "server addr")
	gf.StringVar(&o.caPath, "cacert", "", "CA cert (PEM)")
	gf.BoolVar(&o.insecure, "insecure", false, "skip cert verify (dev)")
	gf.BoolVar(&o.plaintext, "plaintext", false, "connect without TLS (dev)")
	timeout := gf.Duration("timeout", 30*time.Second, "per-command timeout, streams excluded")
	if err := gf.Parse(args); err != nil || gf.NArg() < 1 {
		return errUsage
	}
	cmd, rest := gf.Arg(0), gf.Args()[1:]

	switch cmd {
	case "version":
		_, err := fmt.Fprintf(out, "anonmatch-cli %s (%s)\n", version, buildDate)
		return err
	case "token":
		return cmdToken(rest, out)
	case "watch":
		return withClient(o, func(cl *grpcserver.Client) error { return watch(ctx, cl, out) })
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	switch cmd {
	case "match", "next":
		f, err := parseFilters(cmd, rest)
		if err != nil {
			return err
		}
		return withClient(o, func(cl *grpcserver.Client) error {
			call := cl.RequestMatch
			if cmd == "next" {
				call = cl.RequestNext
			}
			res, err := call(ctx, f)
			if err != nil {
				return err
			}
			return printProto(out, res)
		})
	case "cancel":
		return withClient(o, func(cl *grpcserver.Client) error {
			res, err := cl.CancelSearch(ctx)
			if err != nil {
				return err
			}
			return printProto(out, res)
		})
	case "stop":
		return withClient(o, func(cl *grpcserver.Client) error {
			res, err := cl.EndChat(ctx)
			if err != nil {
				return err
			}
			return printProto(out, res)
		})
	case "secret":
		if len(rest) != 1 {
			return errUsage
		}
		on, err := parseOnOff(rest[0])
		if err != nil {
			return err
		}
		return withClient(o, func(cl *grpcserver.Client) error {
			if err := cl.SetSecretMode(ctx, on); err != nil {
				return err
			}
			_, err := fmt.Fprintln(out, "ok")
			return err
		})
	case "partner":
		return withClient(o, func(cl *grpcserver.Client) error {
			res, err := cl.GetPartner(ctx)
			if err != nil {
				return err
			}
			return printProto(out, res)
		})
	case "stats":
		return withClient(o, func(cl *grpcserver.Client) error {
			res, err := cl.Stats(ctx)
			if err != nil {
				return err
			}
			return printProto(out, res)
		})
	}
	return errUsage
}

func withClient(o dialOpts, fn func(*grpcserver.Client) error) error {
	token, err := loadToken()
	if err != nil {
		return err
	}
	cc, cl, err := dial(o, token)
	if err != nil {
		return err
	}
	defer cc.Close()
	return fn(cl)
}

// cmdToken mints a participant token with the server's signing key. Deployments
// that front the server with their own identity provider skip this.
func cmdToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "participant id")
	key := fs.String("key", os.Getenv("ANONMATCH_JWT_KEY"), "HS256 signing key")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	pid, err := strconv.ParseInt(*id, 10, 64)
	if err != nil || pid == 0 || *key == "" {
		return fmt.Errorf("%w: need -id <non-zero integer> and -key", errUsage)
	}

	now := time.Now()
	tok, err := grpcserver.NewToken([]byte(*key), pid, *ttl, now)
	if err != nil {
		return err
	}
	if err := saveToken(tok, now.Add(*ttl)); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, "ok")
	return err
}

func fail(err error) {
	if st, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", st.Code(), st.Message())
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}
