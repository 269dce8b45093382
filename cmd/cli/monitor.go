package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/malivvan/cui"

	"github.com/malivvan/uis/client"
	"github.com/malivvan/uis/internal/cookie"
	"github.com/malivvan/uis/service"
	"github.com/malivvan/uis/wire"
)

// runMonitor renders a live device/report/item tree, adapted from the
// teacher's cui/cui.go three-panel flex layout: a tree view on the left,
// a header banner, and a scrolling poll log on the right, refreshed on a
// fixed tick (client control calls are cheap, synchronous polls, §4.9).
func runMonitor(version string, svc *service.Service) error {
	app := cui.NewApplication()

	header := cui.NewTextView()
	header.SetText(fmt.Sprintf("uis monitor %s — Ctrl+C to exit", version))
	header.SetTextAlign(cui.AlignCenter)

	tree := cui.NewTextView()
	tree.SetTextAlign(cui.AlignLeft)

	log := cui.NewTextView()
	log.SetTextAlign(cui.AlignLeft)

	body := cui.NewFlex()
	body.SetDirection(cui.FlexColumn)
	body.AddItem(tree, 0, 1, false)
	body.AddItem(log, 0, 1, false)

	root := cui.NewFlex()
	root.AddItem(header, 1, 0, false)
	root.AddItem(body, 0, 1, false)
	app.SetRoot(root, true)

	c := client.New(svc.Dispatcher)
	stop := make(chan struct{})
	go monitorTick(c, tree, log, stop)
	defer close(stop)

	return app.Run()
}

// monitorTick redraws the device tree and a rolling log of item values
// every 250ms. Each redraw issues only the synchronous control RPCs the
// client library exposes (next-device, get-device, get-report, get-item,
// poll-item-value) — no new transport is invented for the monitor.
func monitorTick(c *client.Client, tree, log *cui.TextView, stop <-chan struct{}) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	var history []string

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var b strings.Builder
			var after uint32
			for {
				dev, err := c.NextDevice(after)
				if err != nil {
					break
				}
				fmt.Fprintf(&b, "%s %s (page=%d id=%d)\n", cookie.Render(dev.ID()), dev.Name(), dev.Usage.Page, dev.Usage.ID)
				for _, t := range []wire.TypeMask{wire.MaskInput, wire.MaskOutput, wire.MaskFeature} {
					for ri := 0; ; ri++ {
						rep, err := dev.Report(t, ri)
						if err != nil {
							break
						}
						fmt.Fprintf(&b, "  %s[%d] (%d items)\n", t, ri, rep.ItemCount())
						for ii := 0; ii < rep.ItemCount(); ii++ {
							it, err := rep.Item(ii)
							if err != nil {
								continue
							}
							v, err := it.PollValue()
							if err != nil {
								continue
							}
							line := fmt.Sprintf("    item[%d] usage=%d/%d value=%.3f", ii, it.Usage.Page, it.Usage.ID, v)
							fmt.Fprintln(&b, line)
							history = append(history, line)
						}
					}
				}
				after = dev.ID()
			}
			tree.SetText(b.String())

			if len(history) > 200 {
				history = history[len(history)-200:]
			}
			log.SetText(strings.Join(history, "\n"))
		}
	}
}
