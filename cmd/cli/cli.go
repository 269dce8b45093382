// Package cli is the `uis` cobra command tree: serve, devices, monitor,
// and send-report. Rewritten from the teacher's YubiKey-management root
// command (same cobra shape: a root with persistent flags, env-overridden
// defaults) to front the Input Service instead.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/malivvan/uis/client"
	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/internal/cookie"
	"github.com/malivvan/uis/kerneldev"
	"github.com/malivvan/uis/service"
	"github.com/malivvan/uis/wire"
)

const defaultConfigPath = "~/.uis.yaml"

// New builds the `uis` root command.
func New(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "uis",
		Short:   "Unified Input Service control tool",
		Version: version,
	}
	root.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	configPath := os.Getenv("UIS_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	root.PersistentFlags().StringP("config", "c", configPath, "path to service config file")
	root.PersistentFlags().Bool("simulate", false, "run against an in-process simulated device instead of real hardware")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newDevicesCmd(),
		newMonitorCmd(),
		newSendReportCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.Parent().Version)
		},
	}
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(l).With().Timestamp().Logger()
}

// loadServiceConfig resolves --config through service.LoadConfig, which
// itself applies the UIS_CONFIG/UIS_SOCKET/UIS_HID_ROOT overrides.
func loadServiceConfig(cmd *cobra.Command) (service.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == defaultConfigPath {
		path = "" // let LoadConfig fall back to its built-in defaults
	}
	return service.LoadConfig(path)
}

// chanDialer stands in for the real remote message-port transport
// (external collaborator (c), §1): a same-process CLI has no other
// process to dial, so every target is an in-memory channel endpoint.
func chanDialer(team, port, token int64) (endpoint.Endpoint, error) {
	return endpoint.NewChan(16), nil
}

// simOpener builds a single demo gamepad-shaped simulated device,
// standing in for a real kernel pseudo-file (§1, external collaborator
// (a)) when --simulate is set.
func simOpener(path string) (kerneldev.Handle, error) {
	sim := kerneldev.NewSim(kerneldev.SimSpec{
		Usage:  wire.Usage{Page: 1, ID: 5},
		NameID: 1,
		Reports: [wire.NumReportTypes][]kerneldev.SimReport{
			wire.ReportTypeInput: {{ID: 1, Items: []wire.ItemInfoReply{
				{Usage: wire.Usage{Page: 1, ID: 0x30}},
				{Usage: wire.Usage{Page: 1, ID: 0x31}},
			}}},
			wire.ReportTypeOutput: {{ID: 2, Items: []wire.ItemInfoReply{
				{Usage: wire.Usage{Page: 8, ID: 1}, IsRelative: false},
			}}},
		},
	})
	sim.SetString(1, "Simulated Gamepad", wire.StringEncodingASCII)
	return sim, nil
}

func buildService(cmd *cobra.Command) (*service.Service, error) {
	cfg, err := loadServiceConfig(cmd)
	if err != nil {
		return nil, err
	}
	simulate, _ := cmd.Flags().GetBool("simulate")

	var open func(path string) (kerneldev.Handle, error)
	if simulate {
		open = simOpener
	}
	return service.New(cfg, chanDialer, open, newLogger(cmd)), nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the input service daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			svc.Shutdown(context.Background())
			return nil
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "list known devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Shutdown(context.Background())

			c := client.New(svc.Dispatcher)
			var after uint32
			for {
				dev, err := c.NextDevice(after)
				if err != nil {
					break
				}
				fmt.Printf("%s\t%s\t(page=%d id=%d)\n", cookie.Render(dev.ID()), dev.Name(), dev.Usage.Page, dev.Usage.ID)
				after = dev.ID()
			}
			return nil
		},
	}
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "open a live TUI device/report/item monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Shutdown(context.Background())
			return runMonitor(cmd.Parent().Version, svc)
		},
	}
}

func newSendReportCmd() *cobra.Command {
	var deviceID uint32
	var reportIdx int
	var itemIdx int
	var value float64

	cmd := &cobra.Command{
		Use:   "send-report",
		Short: "send a single item value to an output report",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Shutdown(context.Background())

			c := client.New(svc.Dispatcher)
			dev, err := c.GetDevice(deviceID)
			if err != nil {
				return err
			}
			rep, err := dev.Report(wire.MaskOutput, reportIdx)
			if err != nil {
				return err
			}
			rep.SetItemValue(itemIdx, float32(value))
			return rep.Send()
		},
	}
	cmd.Flags().Uint32Var(&deviceID, "device", 0, "device id")
	cmd.Flags().IntVar(&reportIdx, "report", 0, "output report index")
	cmd.Flags().IntVar(&itemIdx, "item", 0, "item index within the report")
	cmd.Flags().Float64Var(&value, "value", 0, "value to send")
	return cmd
}
