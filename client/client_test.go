package client_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/malivvan/uis/client"
	"github.com/malivvan/uis/device"
	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/kerneldev"
	"github.com/malivvan/uis/rpc"
	"github.com/malivvan/uis/target"
	"github.com/malivvan/uis/wire"
)

func testClient(t *testing.T) (*client.Client, *kerneldev.Sim, uint32) {
	t.Helper()
	log := zerolog.Nop()
	targets := target.NewRegistry()
	devices := device.NewRegistry(targets, log)

	sim := kerneldev.NewSim(kerneldev.SimSpec{
		Usage:  wire.Usage{Page: 1, ID: 4},
		NameID: 1,
		Reports: [wire.NumReportTypes][]kerneldev.SimReport{
			wire.ReportTypeInput: {
				{ID: 1, Items: []wire.ItemInfoReply{
					{Usage: wire.Usage{Page: 1, ID: 0x30}},
				}},
			},
			wire.ReportTypeOutput: {
				{ID: 2, Items: []wire.ItemInfoReply{
					{Usage: wire.Usage{Page: 8, ID: 1}},
				}},
			},
		},
	})
	sim.SetString(1, "Pad", wire.StringEncodingASCII)

	id, _, err := devices.Add(sim, "/dev/input/test0")
	require.NoError(t, err)

	d := rpc.New(devices, targets, func(team, port, token int64) (endpoint.Endpoint, error) {
		return endpoint.NewChan(4), nil
	}, log)

	return client.New(d), sim, id
}

func TestRosterAndDeviceAttributes(t *testing.T) {
	c, _, id := testClient(t)

	dev, err := c.NextDevice(0)
	require.NoError(t, err)
	require.Equal(t, id, dev.ID())
	require.Equal(t, "Pad", dev.Name())
	require.Equal(t, 1, dev.ReportCount(wire.ReportTypeInput))
	require.Equal(t, 1, dev.ReportCount(wire.ReportTypeOutput))

	_, err = c.NextDevice(id)
	require.Error(t, err)
}

func TestFindItemAndPoll(t *testing.T) {
	c, sim, id := testClient(t)

	dev, err := c.GetDevice(id)
	require.NoError(t, err)

	it, err := dev.FindItem(wire.MaskInput, 1, 0x30)
	require.NoError(t, err)
	require.Equal(t, wire.Usage{Page: 1, ID: 0x30}, it.Usage)

	require.NoError(t, sim.Deliver(wire.ReportTypeInput, 0, []wire.ItemDatum{{Index: 0, Value: 0.5}}))

	require.Eventually(t, func() bool {
		v, err := it.PollValue()
		return err == nil && v == 0.5
	}, time.Second, 5*time.Millisecond)
}

func TestBatchedSendReport(t *testing.T) {
	c, _, id := testClient(t)

	dev, err := c.GetDevice(id)
	require.NoError(t, err)
	rep, err := dev.Report(wire.MaskOutput, 0)
	require.NoError(t, err)

	rep.SetItemValue(0, 1.0)
	rep.MakeEmpty() // discarded, no RPC issued
	require.NoError(t, rep.Send())

	rep.SetItemValue(0, 0.25)
	require.NoError(t, rep.Send())
}

func TestSetTargetReleaseRoundTrip(t *testing.T) {
	c, _, id := testClient(t)

	dev, err := c.GetDevice(id)
	require.NoError(t, err)
	rep, err := dev.Report(wire.MaskInput, 0)
	require.NoError(t, err)
	it, err := rep.Item(0)
	require.NoError(t, err)

	tgt := c.NewLocalTarget(1, 100, 7)
	require.NoError(t, it.SetTarget(tgt, 42))
	require.NoError(t, it.SetTarget(nil, 42))
}
