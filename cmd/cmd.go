package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/tmc/langchaingo/chains"
	"github.com/xhad/ragpage/internal/types"
	"github.com/xhad/ragpage/pkg/rag"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// ingestProgress shows a spinner while the page loads and a bar while
// chunks are embedded and stored.
type ingestProgress struct {
	bar *progressbar.ProgressBar
}

func newIngestProgress() *ingestProgress {
	return &ingestProgress{bar: getSpinner("📄 Loading page...")}
}

func (p *ingestProgress) update(stage string, n int) {
	switch stage {
	case "load":
		p.bar.Finish()
		color.New(color.FgGreen).Fprintf(os.Stderr, "\n✓ Loaded %d documents\n", n)
	case "split":
		color.New(color.FgGreen).Fprintf(os.Stderr, "✓ Split into %d chunks\n", n)
		p.bar = getProgressBar(n, "💾 Embedding and storing...")
	case "store":
		p.bar.Set(n)
	}
}

func (p *ingestProgress) finish() {
	p.bar.Finish()
	fmt.Fprintln(os.Stderr)
}

// chatLoop keeps answering questions read from in until EOF or "exit".
func chatLoop(ctx context.Context, asker types.Asker, in io.Reader, streaming bool, opts []chains.ChainCallOption) error {
	color.New(color.FgCyan).Fprintln(os.Stderr, "\nChat with the page (type 'exit' to quit)")

	scanner := bufio.NewScanner(in)
	userPrompt := color.New(color.FgGreen)
	assistantPrompt := color.New(color.FgCyan)

	for {
		userPrompt.Fprint(os.Stderr, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		callOpts := opts
		var spinner *progressbar.ProgressBar
		if streaming {
			assistantPrompt.Fprint(os.Stderr, "Assistant: ")
			callOpts = append(append([]chains.ChainCallOption{}, opts...),
				chains.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
					assistantPrompt.Fprint(os.Stderr, string(chunk))
					return nil
				}))
		} else {
			spinner = getSpinner("🤖 Generating response...")
		}

		resp, err := asker.Ask(ctx, query, callOpts...)
		if spinner != nil {
			spinner.Finish()
			fmt.Fprint(os.Stderr, "\r")
		}
		if err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if streaming {
			fmt.Fprintln(os.Stderr)
		} else {
			assistantPrompt.Fprintf(os.Stderr, "Assistant: %s\n", resp.Answer)
		}
		color.New(color.FgHiBlack).Fprintln(os.Stderr, rag.FormatSources(resp.Context))
	}

	return scanner.Err()
}
