package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/kerneldev"
	"github.com/malivvan/uis/rpc"
	"github.com/malivvan/uis/service"
	"github.com/malivvan/uis/wire"
)

func TestServiceDiscoversAndDispatches(t *testing.T) {
	root := t.TempDir()
	candidate := filepath.Join(root, "gamepad0")
	require.NoError(t, os.WriteFile(candidate, nil, 0o644))

	open := func(path string) (kerneldev.Handle, error) {
		sim := kerneldev.NewSim(kerneldev.SimSpec{
			Usage:  wire.Usage{Page: 1, ID: 5},
			NameID: 1,
			Reports: [wire.NumReportTypes][]kerneldev.SimReport{
				wire.ReportTypeInput: {{ID: 1, Items: []wire.ItemInfoReply{{Usage: wire.Usage{Page: 1, ID: 0x30}}}}},
			},
		})
		sim.SetString(1, "Gamepad", wire.StringEncodingASCII)
		return sim, nil
	}

	cfg := service.Config{HIDRoot: root, Socket: "/tmp/uisd-test.sock", LogLevel: "debug"}
	svc := service.New(cfg, func(team, port, token int64) (endpoint.Endpoint, error) {
		return endpoint.NewChan(4), nil
	}, open, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Shutdown(context.Background())

	require.Eventually(t, func() bool {
		return svc.Devices.Count() == 1
	}, time.Second, 5*time.Millisecond)

	reply, err := svc.Dispatcher.Dispatch(rpc.OpCountDevices, rpc.Message{})
	require.NoError(t, err)
	require.Equal(t, 1, reply["devices"])
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("UIS_HID_ROOT", "/custom/root")
	t.Setenv("UIS_SOCKET", "/custom.sock")
	cfg, err := service.LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "/custom/root", cfg.HIDRoot)
	require.Equal(t, "/custom.sock", cfg.Socket)
}
