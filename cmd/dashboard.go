package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/webitel/im-sync-engine/internal/syncengine"
)

// runDashboard renders a live termui view of Status(), polled on a
// short tick, until stop fires or 'q' is pressed.
func runDashboard(co *syncengine.Coordinator, stop <-chan os.Signal) {
	if err := ui.Init(); err != nil {
		fmt.Printf("dashboard: termui init failed: %v\n", err)
		runConsole(co, slog.Default(), stop)
		return
	}
	defer ui.Close()

	p := widgets.NewParagraph()
	p.Title = "im-sync-engine"
	p.SetRect(0, 0, 60, 9)

	render := func() {
		st, err := co.Status(context.Background())
		if err != nil {
			p.Text = fmt.Sprintf("status error: %v", err)
			ui.Render(p)
			return
		}
		last := "never"
		if st.LastSyncAt != nil {
			last = st.LastSyncAt.Format(time.RFC3339)
		}
		p.Text = fmt.Sprintf(
			"active:    %v\nonline:    %v\nsyncing:   %v\npending:   %d\nfailed:    %d\nlast sync: %s\n\n[q] quit",
			st.Active, st.Online, st.Syncing, st.Pending, st.Failed, last,
		)
		ui.Render(p)
	}

	render()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	for {
		select {
		case <-stop:
			return
		case e := <-uiEvents:
			if e.Type == ui.KeyboardEvent && (e.ID == "q" || e.ID == "<C-c>") {
				return
			}
		case <-ticker.C:
			render()
		}
	}
}
