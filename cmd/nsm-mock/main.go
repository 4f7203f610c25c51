// Package main is the entry point for the nsm-mock service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/urfave/cli/v2"

	"github.com/bigknoxy/nsmmock/internal/activation"
	"github.com/bigknoxy/nsmmock/internal/bus"
	"github.com/bigknoxy/nsmmock/internal/config"
	"github.com/bigknoxy/nsmmock/internal/dbusnsm"
	"github.com/bigknoxy/nsmmock/internal/log"
	"github.com/bigknoxy/nsmmock/internal/nsm"
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
	loggerCfg.Prefix = "nsm"

	if err := log.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	app := &cli.App{
		Name:    "nsm-mock",
		Version: Version,
		Usage:   "Node State Manager test double on D-Bus",
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
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Claim the bus name and answer calls until finish",
				Action: runServe,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Do not store shutdown clients that fail validation",
					},
					&cli.PathFlag{
						Name:  "introspection-file",
						Usage: "Introspection document to serve (overrides config)",
					},
				},
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: runConfig,
			},
			{
				Name:  "activation",
				Usage: "Manage D-Bus activation of nsm-mock",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "method",
						Usage: "Activation method: dbus or systemd",
						Value: "dbus",
					},
					&cli.PathFlag{
						Name:  "dir",
						Usage: "Directory for the activation file (default: the bus daemon's service directory)",
					},
				},
				Subcommands: []*cli.Command{
					{
						Name:   "install",
						Usage:  "Install the activation file",
						Action: runActivationInstall,
					},
					{
						Name:   "uninstall",
						Usage:  "Remove the activation file",
						Action: runActivationUninstall,
					},
					{
						Name:   "status",
						Usage:  "Show whether nsm-mock is activatable",
						Action: runActivationStatus,
					},
				},
			},
			{
				Name:      "check",
				Usage:     "Validate an introspection file without connecting",
				ArgsUsage: "[file]",
				Action:    runCheck,
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

// loadConfig loads configuration and applies it to the global logger.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.Path("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lc, err := cfg.LogConfig("nsm")
	if err != nil {
		return nil, err
	}
	if c.Bool("verbose") {
		lc.Level = log.DebugLevel
	}
	if err := log.Init(lc); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// setupGracefulShutdown cancels ctx on SIGINT or SIGTERM.
func setupGracefulShutdown(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Warn("Received signal, shutting down...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("strict") {
		cfg.StrictRegistration = true
	}
	if f := c.Path("introspection-file"); f != "" {
		cfg.IntrospectionFile = f
	}

	doc, err := nsm.LoadIntrospection(cfg.IntrospectionFile)
	if err != nil {
		return err
	}
	if err := dbusnsm.ValidateIntrospection(doc); err != nil {
		return fmt.Errorf("%s: %w", cfg.IntrospectionFile, err)
	}

	conn, err := dbusnsm.Connect(cfg.Bus)
	if err != nil {
		return err
	}

	path := dbus.ObjectPath(cfg.ObjectPath)
	loop := bus.NewLoop()
	svc := nsm.NewService(
		nsm.WithIntrospection(doc),
		nsm.WithNotifier(dbusnsm.NewEmitter(conn, path)),
		nsm.WithDialer(dbusnsm.NewDialer(conn, cfg.CallTimeoutDuration())),
		nsm.WithStopFunc(loop.Stop),
		nsm.WithStrictRegistration(cfg.StrictRegistration),
	)

	server := dbusnsm.NewServer(conn, loop, svc, cfg.BusName, path)
	if err := server.Start(); err != nil {
		conn.Close()
		return err
	}

	log.Info("Starting nsm-mock",
		"version", Version,
		"bus", cfg.Bus,
		"name", cfg.BusName,
		"path", cfg.ObjectPath,
		"strict", cfg.StrictRegistration,
	)

	ctx, cancel := setupGracefulShutdown(context.Background())
	defer cancel()

	runErr := loop.Run(ctx)
	closeErr := server.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Join(runErr, closeErr)
	}
	if closeErr != nil {
		return closeErr
	}
	log.Info("nsm-mock stopped", "state", svc.State())
	return nil
}

func runConfig(c *cli.Context) error {
	cfg, err := config.Load(c.Path("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println()
	fmt.Printf("Version:             %s\n", Version)
	fmt.Printf("Bus:                 %s\n", cfg.Bus)
	fmt.Printf("Bus name:            %s\n", cfg.BusName)
	fmt.Printf("Object path:         %s\n", cfg.ObjectPath)
	fmt.Printf("Introspection file:  %s %s\n", cfg.IntrospectionFile, statusBool(fileExists(cfg.IntrospectionFile)))
	fmt.Printf("Strict registration: %t\n", cfg.StrictRegistration)
	fmt.Printf("Call timeout:        %s\n", cfg.CallTimeoutDuration())
	fmt.Printf("Log level:           %s\n", cfg.LogLevel)
	fmt.Println()
	return nil
}

func runCheck(c *cli.Context) error {
	file := c.Args().First()
	if file == "" {
		cfg, err := config.Load(c.Path("config"))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		file = cfg.IntrospectionFile
	}

	doc, err := nsm.LoadIntrospection(file)
	if err != nil {
		return err
	}
	if err := dbusnsm.ValidateIntrospection(doc); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	fmt.Printf("%s: ok\n", file)
	return nil
}

// activationManager builds the manager selected by the activation flags.
// The config and introspection files are handed to the activated process
// as absolute paths.
func activationManager(c *cli.Context) (activation.Manager, error) {
	cfg, err := config.Load(c.Path("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to find executable: %w", err)
	}
	return activation.NewManager(c.String("method"), activation.Config{
		BusName:           cfg.BusName,
		Bus:               cfg.Bus,
		ExecPath:          execPath,
		ConfigFile:        c.Path("config"),
		IntrospectionFile: cfg.IntrospectionFile,
		Dir:               c.Path("dir"),
	})
}

func runActivationInstall(c *cli.Context) error {
	mgr, err := activationManager(c)
	if err != nil {
		return err
	}
	res, err := mgr.Install()
	if err != nil {
		return fmt.Errorf("failed to install %s activation: %w", mgr.Name(), err)
	}
	fmt.Printf("%s: %s\n", res.Message, res.Path)
	if res.LogPath != "" {
		fmt.Printf("Logs: %s\n", res.LogPath)
	}
	return nil
}

func runActivationUninstall(c *cli.Context) error {
	mgr, err := activationManager(c)
	if err != nil {
		return err
	}
	res, err := mgr.Uninstall()
	if err != nil {
		return fmt.Errorf("failed to uninstall %s activation: %w", mgr.Name(), err)
	}
	fmt.Printf("%s: %s\n", res.Message, res.Path)
	return nil
}

func runActivationStatus(c *cli.Context) error {
	mgr, err := activationManager(c)
	if err != nil {
		return err
	}
	st, err := mgr.Status()
	if err != nil {
		return err
	}
	fmt.Printf("Method:   %s\n", mgr.Name())
	fmt.Printf("Path:     %s %s\n", st.Path, statusBool(st.Installed))
	fmt.Printf("Status:   %s\n", st.Status)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func statusBool(b bool) string {
	if b {
		return "(exists)"
	}
	return "(missing)"
}
