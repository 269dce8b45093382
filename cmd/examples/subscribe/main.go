// Command subscribe demonstrates the event-delivery path end to end: it
// subscribes to an item via set-item-target, drives a simulated input
// report through kerneldev.Sim, and prints the events as they arrive on
// the in-process endpoint.Chan acting as the remote message port.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/malivvan/uis/client"
	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/kerneldev"
	"github.com/malivvan/uis/service"
	"github.com/malivvan/uis/wire"
)

func main() {
	hidRoot, err := os.MkdirTemp("", "uis-subscribe-demo")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(hidRoot)

	endpoints := make(map[int64]*endpoint.Chan)
	dialer := func(team, port, token int64) (endpoint.Endpoint, error) {
		ep := endpoint.NewChan(16)
		endpoints[token] = ep
		return ep, nil
	}

	cfg := service.DefaultConfig()
	cfg.HIDRoot = hidRoot
	svc := service.New(cfg, dialer, nil, zerolog.Nop())

	sim := kerneldev.NewSim(kerneldev.SimSpec{
		Usage:  wire.Usage{Page: 1, ID: 5},
		NameID: 1,
		Reports: [wire.NumReportTypes][]kerneldev.SimReport{
			wire.ReportTypeInput: {{ID: 1, Items: []wire.ItemInfoReply{{Usage: wire.Usage{Page: 1, ID: 0x30}}}}},
		},
	})
	sim.SetString(1, "Demo Stick", wire.StringEncodingASCII)
	if _, _, err := svc.Devices.Add(sim, "/virtual/demo-stick"); err != nil {
		log.Fatal(err)
	}

	if err := svc.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer svc.Shutdown(context.Background())

	c := client.New(svc.Dispatcher)
	dev, err := c.NextDevice(0)
	if err != nil {
		log.Fatal(err)
	}
	item, err := dev.FindItem(wire.MaskInput, 1, 0x30)
	if err != nil {
		log.Fatal(err)
	}

	const subscriberToken = 42
	target := c.NewLocalTarget(1, 1, subscriberToken)
	if err := item.SetTarget(target, 99); err != nil {
		log.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		value := float32(i) / 4
		if err := sim.Deliver(wire.ReportTypeInput, 0, []wire.ItemDatum{{Index: 0, Value: value}}); err != nil {
			log.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	ep := endpoints[subscriberToken]
	timeout := time.After(time.Second)
	for i := 0; i < 5; i++ {
		select {
		case ev := <-ep.C:
			fmt.Printf("event cookie=%d value=%.3f\n", ev.Cookie, ev.Value)
		case <-timeout:
			return
		}
	}
}
