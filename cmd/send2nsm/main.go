// Package main is the entry point for send2nsm, which triggers one Control
// call on a running nsm-mock.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bigknoxy/nsmmock/internal/config"
	"github.com/bigknoxy/nsmmock/internal/dbusnsm"
	"github.com/bigknoxy/nsmmock/internal/log"
	"github.com/bigknoxy/nsmmock/internal/sender"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := runApp(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runApp() error {
	loggerCfg := log.DefaultConfig()
	loggerCfg.Prefix = "send2nsm"

	if err := log.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	app := &cli.App{
		Name:    "send2nsm",
		Version: Version,
		Usage:   "Trigger a signal or lifecycle request on nsm-mock",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    "config",
				Usage:   "Path to JSON config file",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"vv"},
				Usage:   "Enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "nodeState",
				Usage:     "Emit NodeState with the given state",
				ArgsUsage: "<id>",
				Action:    runNodeState,
			},
			{
				Name:      "appMode",
				Usage:     "Emit NodeApplicationMode with the given mode",
				ArgsUsage: "<id>",
				Action:    runAppMode,
			},
			{
				Name:      "sessionState",
				Usage:     "Emit SessionStateChanged",
				ArgsUsage: "<name> <seatId> <state>",
				Action:    runSessionState,
			},
			{
				Name:      "LifecycleRequest",
				Usage:     "Forward a lifecycle request to the registered shutdown client",
				ArgsUsage: "<request> <requestId>",
				Action:    runLifecycleRequest,
			},
			{
				Name:   "finish",
				Usage:  "Stop nsm-mock",
				Action: runFinish,
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
	}

	return app.Run(os.Args)
}

// withClient connects to the configured bus, resolves the mock and runs fn.
func withClient(c *cli.Context, fn func(ctx context.Context, client *sender.Client) (int32, error)) error {
	cfg, err := config.Load(c.Path("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	conn, err := dbusnsm.Connect(cfg.Bus)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := sender.Dial(conn, cfg.BusName, cfg.ObjectPath)
	if err != nil {
		return err
	}

	ctx := c.Context
	if d := cfg.CallTimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ret, err := fn(ctx, client)
	if err != nil {
		return err
	}
	log.Debug("call returned", "command", c.Command.Name, "value", ret)
	return nil
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() < n {
		return fmt.Errorf("%s needs %d argument(s): %s", c.Command.Name, n, c.Command.ArgsUsage)
	}
	return nil
}

func runNodeState(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	state, err := sender.ParseInt32("id", c.Args().Get(0))
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *sender.Client) (int32, error) {
		return client.NodeState(ctx, state)
	})
}

func runAppMode(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	mode, err := sender.ParseInt32("id", c.Args().Get(0))
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *sender.Client) (int32, error) {
		return client.AppMode(ctx, mode)
	})
}

func runSessionState(c *cli.Context) error {
	if err := requireArgs(c, 3); err != nil {
		return err
	}
	name := c.Args().Get(0)
	seat, err := sender.ParseInt32("seatId", c.Args().Get(1))
	if err != nil {
		return err
	}
	state, err := sender.ParseInt32("state", c.Args().Get(2))
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *sender.Client) (int32, error) {
		return client.SessionState(ctx, name, seat, state)
	})
}

func runLifecycleRequest(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	request, err := sender.ParseUint32("request", c.Args().Get(0))
	if err != nil {
		return err
	}
	requestID, err := sender.ParseUint32("requestId", c.Args().Get(1))
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *sender.Client) (int32, error) {
		return client.LifecycleRequest(ctx, request, requestID)
	})
}

func runFinish(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *sender.Client) (int32, error) {
		return client.Finish(ctx)
	})
}
