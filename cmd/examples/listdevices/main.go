// Command listdevices is a minimal demo of the client library's Roster
// iteration (§4.9): it walks every device the service currently knows
// about using only next-device and get-device RPCs.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/rs/zerolog"

	"github.com/malivvan/uis/client"
	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/kerneldev"
	"github.com/malivvan/uis/service"
	"github.com/malivvan/uis/wire"
)

func main() {
	hidRoot, err := os.MkdirTemp("", "uis-listdevices-demo")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(hidRoot)

	cfg := service.DefaultConfig()
	cfg.HIDRoot = hidRoot // empty directory; this demo seeds one simulated device directly

	svc := service.New(cfg, func(team, port, token int64) (endpoint.Endpoint, error) {
		return endpoint.NewChan(4), nil
	}, nil, zerolog.Nop())

	sim := kerneldev.NewSim(kerneldev.SimSpec{
		Usage:  wire.Usage{Page: 1, ID: 5},
		NameID: 1,
		Reports: [wire.NumReportTypes][]kerneldev.SimReport{
			wire.ReportTypeInput: {{ID: 1, Items: []wire.ItemInfoReply{{Usage: wire.Usage{Page: 1, ID: 0x30}}}}},
		},
	})
	sim.SetString(1, "Demo Pad", wire.StringEncodingASCII)
	if _, _, err := svc.Devices.Add(sim, "/virtual/demo-pad"); err != nil {
		log.Fatal(err)
	}

	if err := svc.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer svc.Shutdown(context.Background())

	c := client.New(svc.Dispatcher)
	var after uint32
	for {
		dev, err := c.NextDevice(after)
		if err != nil {
			break
		}
		fmt.Printf("device %d: %s (usage page=%d id=%d)\n", dev.ID(), dev.Name(), dev.Usage.Page, dev.Usage.ID)
		for t := wire.ReportTypeInput; int(t) < wire.NumReportTypes; t++ {
			fmt.Printf("  %d %s report(s)\n", dev.ReportCount(t), t)
		}
		after = dev.ID()
	}
}
