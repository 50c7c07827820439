package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	"wfsweep/internal/engine"
)

// renderProgress drains events until ch is closed. On a terminal it keeps a
// single status line updated in place; otherwise it logs at most every
// interval.
func renderProgress(ch <-chan engine.Progress, log *slog.Logger, interval time.Duration) {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		renderTerminal(ch, os.Stderr)
		return
	}
	var last time.Time
	var latest engine.Progress
	for p := range ch {
		latest = p
		if time.Since(last) < interval {
			continue
		}
		last = time.Now()
		logProgress(log, p)
	}
	if latest.Total > 0 {
		logProgress(log, latest)
	}
}

func logProgress(log *slog.Logger, p engine.Progress) {
	log.Info("sweep progress",
		"done", fmt.Sprintf("%d/%d", p.Done(), p.Total),
		"failed", p.Failed,
		"skipped", p.Skipped,
		"elapsed", p.Elapsed.Round(time.Second),
		"eta", p.ETA.Round(time.Second),
	)
}

func renderTerminal(ch <-chan engine.Progress, w io.Writer) {
	width := 80
	if cols, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && cols > 20 {
		width = cols
	}
	var seen bool
	for p := range ch {
		seen = true
		line := fmt.Sprintf("%d/%d tasks  %d failed  %d skipped  elapsed %s  eta %s",
			p.Done(), p.Total, p.Failed, p.Skipped, p.Elapsed.Round(time.Second), p.ETA.Round(time.Second))
		if len(line) > width-1 {
			line = line[:width-1]
		}
		fmt.Fprintf(w, "\r%-*s", width-1, line)
	}
	if seen {
		fmt.Fprintln(w)
	}
}
