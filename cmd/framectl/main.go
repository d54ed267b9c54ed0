package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/foodlens/framelink/internal/app"
	"github.com/foodlens/framelink/internal/config"
)

const usageText = `usage: framectl [global flags] <command> [command flags]

commands:
  version    print build version
  connect    connect to the glasses and report firmware
  evaluate   capture, classify and show the verdict on the HUD
  script     run a raw Lua script on the glasses
  stream     print camera and/or microphone descriptors
  serve      run the websocket feed and MQTT bridge until interrupted
  history    list logged meals
  insights   summarize logged meals
  similar    find meals similar to a description
  scan       list nearby BLE devices
  clear      delete all stored meals and command records
  watch      connect and print device events
`

var errUsage = errors.New("invalid usage")

// globalOptions override values from the saved config.
type globalOptions struct {
	ConfigDir string
	Connector string
	Serial    string
	Address   string
	Adapter   string
	Latency   int
	LogLevel  string
}

type invocation struct {
	Global  globalOptions
	Command string
	Args    []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("framectl", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	inv, err := parseInvocation(args, out)
	if err != nil {
		return err
	}

	switch inv.Command {
	case "version":
		_, err := fmt.Fprintln(out, app.Name, app.CurrentBuild())
		return err
	case "scan":
		return runScan(ctx, inv, out)
	case "help":
		_, err := io.WriteString(out, usageText)
		return err
	}

	cmd, ok := runtimeCommands[inv.Command]
	if !ok {
		fmt.Fprintf(out, "unknown command %q\n\n%s", inv.Command, usageText)
		return errUsage
	}

	rt, err := initRuntime(ctx, inv.Global)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	return cmd(ctx, rt, inv.Args, out)
}

func parseInvocation(args []string, out io.Writer) (invocation, error) {
	var inv invocation

	fs := flag.NewFlagSet("framectl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		_, _ = io.WriteString(out, usageText+"\nglobal flags:\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&inv.Global.ConfigDir, "config-dir", "", "config and data directory (default: user config dir)")
	fs.StringVar(&inv.Global.Connector, "connector", "", "connector: simulated, serial or bluetooth")
	fs.StringVar(&inv.Global.Serial, "serial-port", "", "serial port of the wired bridge")
	fs.StringVar(&inv.Global.Address, "address", "", "bluetooth address of the glasses")
	fs.StringVar(&inv.Global.Adapter, "adapter", "", "bluetooth adapter id, e.g. hci1")
	fs.IntVar(&inv.Global.Latency, "latency", -1, "simulated latency percent (0 disables delays)")
	fs.StringVar(&inv.Global.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return invocation{}, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return invocation{}, errUsage
	}
	inv.Command = strings.ToLower(strings.TrimSpace(rest[0]))
	inv.Args = rest[1:]
	if inv.Global.Connector != "" {
		switch config.ConnectorType(inv.Global.Connector) {
		case config.ConnectorSimulated, config.ConnectorSerial, config.ConnectorBluetooth:
		default:
			return invocation{}, fmt.Errorf("%w: unknown connector %q", errUsage, inv.Global.Connector)
		}
	}

	return inv, nil
}

// apply copies flag overrides onto cfg.
func (g globalOptions) apply(cfg *config.AppConfig) {
	if g.Connector != "" {
		cfg.Connection.Connector = config.ConnectorType(g.Connector)
	}
	if s := strings.TrimSpace(g.Serial); s != "" {
		cfg.Connection.SerialPort = s
	}
	if s := strings.TrimSpace(g.Address); s != "" {
		cfg.Connection.BluetoothAddress = s
	}
	if s := strings.TrimSpace(g.Adapter); s != "" {
		cfg.Connection.BluetoothAdapter = s
	}
	if g.Latency >= 0 {
		cfg.Simulator.LatencyPercent = g.Latency
	}
	if s := strings.TrimSpace(g.LogLevel); s != "" {
		cfg.Logging.Level = s
	}
	// One-shot CLI runs do not append to the shared log file.
	cfg.Logging.LogToFile = false
}

func initRuntime(ctx context.Context, g globalOptions) (*app.Runtime, error) {
	opts := app.Options{Override: g.apply}
	if dir := strings.TrimSpace(g.ConfigDir); dir != "" {
		paths, err := app.PathsUnder(dir, filepath.Join(dir, "cache"))
		if err != nil {
			return nil, err
		}
		opts.Paths = &paths
	}

	rt, err := app.Initialize(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("initialize runtime: %w", err)
	}

	return rt, nil
}
