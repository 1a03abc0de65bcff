// xmm7360ctl drives the RPC channel of an XMM7360 LTE modem: firmware
// bring-up, network attach, bearer queries and data channel activation.
//
// The endpoint is the kernel driver's RPC character device by default;
// tcp://, unix:// and ws:// endpoints serve development against a forwarded
// or simulated modem.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/augustjohansson/xmm7360-pci/config"
	"github.com/augustjohansson/xmm7360-pci/messages"
	"github.com/augustjohansson/xmm7360-pci/observability"
	"github.com/augustjohansson/xmm7360-pci/rpc"
	"github.com/augustjohansson/xmm7360-pci/trace"
	"github.com/augustjohansson/xmm7360-pci/transport"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// The config file has to load before flag registration so flags can
	// default to its values and still win when given explicitly.
	pre := pflag.NewFlagSet("xmm7360ctl", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	configPath := pre.String("config", "", "")
	pre.BoolP("help", "h", false, "")
	_ = pre.Parse(os.Args[1:])

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flagSet := pflag.NewFlagSet("xmm7360ctl", pflag.ContinueOnError)
	flagSet.String("config", *configPath, "TOML configuration file")
	flagSet.StringVar(&cfg.Device, "device", cfg.Device, "modem RPC endpoint: a device path or a tcp://, unix://, ws:// URL")
	flagSet.StringVar(&cfg.APN, "apn", cfg.APN, "access point name for attach")
	flagSet.StringVar(&cfg.Table, "table", cfg.Table, "command table file, .json or .toml")
	flagSet.StringVar(&cfg.Trace, "trace", cfg.Trace, "write a CBOR frame trace to this file")
	flagSet.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace, debug, info, warning or error")
	flagSet.StringVar(&cfg.DatachannelPath, "datachannel", cfg.DatachannelPath, "data channel endpoint path")
	flagSet.IntVar(&cfg.Workers, "workers", cfg.Workers, "completion delivery goroutines, 0 for the default")
	timeout := flagSet.Duration("timeout", 30*time.Second, "deadline for the whole command, 0 for none")
	jsonOut := flagSet.Bool("json", false, "print query results as JSON")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level %q not known", cfg.LogLevel)
	}
	log.SetLevel(level)

	args := flagSet.Args()
	if len(args) != 1 {
		printHelp(flagSet)
		return fmt.Errorf("exactly one command is required")
	}

	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tl, err := openTool(cfg)
	if err != nil {
		return err
	}
	defer tl.cleanup()

	runCtx := ctx
	if args[0] != "watch" && *timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	switch args[0] {
	case "init":
		return tl.session.Init(runCtx)
	case "fcc-status":
		status, err := tl.session.FCCLockQuery(runCtx)
		if err != nil {
			return err
		}
		fmt.Printf("% x\n", status)
		return nil
	case "attach":
		if cfg.APN == "" {
			return fmt.Errorf("attach needs --apn")
		}
		return tl.session.Attach(runCtx, cfg.APN)
	case "query":
		info, err := bearer(runCtx, tl.session)
		if err != nil {
			return err
		}
		return printBearer(info, *jsonOut)
	case "connect":
		return tl.session.Connect(runCtx, cfg.DatachannelPath)
	case "up":
		return up(runCtx, tl.session, cfg, *jsonOut)
	case "watch":
		return watch(ctx, tl.client, tl.table)
	default:
		printHelp(flagSet)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

type tool struct {
	client  *rpc.Client
	session *messages.Session
	table   *messages.Table
	cleanup func()
}

func openTool(cfg config.Config) (*tool, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("a command table is required (--table)")
	}
	table, err := messages.LoadTable(cfg.Table)
	if err != nil {
		return nil, err
	}

	var topts []transport.Option
	if cfg.MaxFrameSize > 0 {
		topts = append(topts, transport.WithMaxFrameSize(uint32(cfg.MaxFrameSize)))
	}
	t, err := transport.Dial(cfg.Device, topts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	opts := []rpc.Option{rpc.WithNameFunc(table.Name)}
	if cfg.Workers > 0 {
		opts = append(opts, rpc.WithWorkers(cfg.Workers))
	}
	if cfg.QueueSize > 0 {
		opts = append(opts, rpc.WithQueueSize(cfg.QueueSize))
	}

	var traceFile *os.File
	var recorder *trace.Recorder
	if cfg.Trace != "" {
		traceFile, err = os.Create(cfg.Trace)
		if err != nil {
			t.Close()
			return nil, err
		}
		recorder = trace.NewRecorder(traceFile)
		opts = append(opts, rpc.WithTracer(recorder))
	}

	c := rpc.New(t, opts...)
	cleanup := func() {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("close")
		}
		if traceFile != nil {
			if err := recorder.Err(); err != nil {
				log.WithError(err).Warn("trace incomplete")
			}
			if err := traceFile.Close(); err != nil {
				log.WithError(err).Warn("close trace")
			}
		}
	}
	return &tool{
		client:  c,
		session: messages.NewSession(c, table),
		table:   table,
		cleanup: cleanup,
	}, nil
}

type bearerInfo struct {
	IP  []netip.Addr `json:"ip"`
	DNS struct {
		V4 []netip.Addr `json:"v4"`
		V6 []netip.Addr `json:"v6"`
	} `json:"dns"`
}

func bearer(ctx context.Context, s *messages.Session) (bearerInfo, error) {
	var info bearerInfo
	addrs, err := s.NegotiatedIP(ctx)
	if err != nil {
		return info, err
	}
	dns, err := s.NegotiatedDNS(ctx)
	if err != nil {
		return info, err
	}
	info.IP = addrs[:]
	info.DNS.V4 = dns.V4
	info.DNS.V6 = dns.V6
	return info, nil
}

func printBearer(info bearerInfo, asJSON bool) error {
	if asJSON {
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	for i, a := range info.IP {
		fmt.Printf("ip[%d]: %s\n", i, a)
	}
	for _, a := range info.DNS.V4 {
		fmt.Printf("dns: %s\n", a)
	}
	for _, a := range info.DNS.V6 {
		fmt.Printf("dns: %s\n", a)
	}
	return nil
}

// up runs the whole flow of bringing a bearer online.
func up(ctx context.Context, s *messages.Session, cfg config.Config, asJSON bool) error {
	if cfg.APN == "" {
		return fmt.Errorf("up needs --apn")
	}
	if err := s.Init(ctx); err != nil {
		return err
	}
	if err := s.Attach(ctx, cfg.APN); err != nil {
		return err
	}
	info, err := bearer(ctx, s)
	if err != nil {
		return err
	}
	if err := s.Connect(ctx, cfg.DatachannelPath); err != nil {
		return err
	}
	return printBearer(info, asJSON)
}

// watch prints unsolicited messages until interrupted or the transport
// fails. Messages arriving faster than they print are dropped.
func watch(ctx context.Context, c *rpc.Client, table *messages.Table) error {
	events := make(chan rpc.Response, 16)
	c.HandleDefault(func(r rpc.Response) {
		select {
		case events <- r:
		default:
		}
	})

	log.Info("watching for unsolicited messages")
	for {
		select {
		case r := <-events:
			name := table.Name(r.Code)
			if name == "" {
				name = fmt.Sprintf("0x%x", r.Code)
			}
			fmt.Printf("%s % x\n", name, r.Body)
		case <-c.Done():
			return c.Err()
		case <-ctx.Done():
			return nil
		}
	}
}

func serveMetrics(addr string) {
	observability.Register(prometheus.DefaultRegisterer)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Warn("metrics server")
		}
	}()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Print(`xmm7360ctl controls the RPC channel of an XMM7360 LTE modem.

usage: xmm7360ctl [flags] <command>

commands:
  init        run the firmware bring-up sequence
  fcc-status  print the FCC lock state
  attach      configure the APN and attach to the network
  query       print the negotiated bearer address and DNS servers
  connect     activate the bearer and open the data channel
  up          init, attach, query and connect in one run
  watch       print unsolicited messages until interrupted

flags:
`)
	fmt.Print(flagSet.FlagUsages())
}
