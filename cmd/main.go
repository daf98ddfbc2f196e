package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/xhad/ragpage/pkg/config"
	"github.com/xhad/ragpage/pkg/rag"
	"github.com/xhad/ragpage/server"
)

// options holds the command line. Only flags the user actually set
// override the loaded config.
type options struct {
	configPath string
	set        map[string]bool

	url          string
	model        string
	temperature  float64
	topK         int
	chunkSize    int
	chunkOverlap int
	backend      string
	interactive  bool
	serve        string
	stream       bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatal(err)
	}
	opts.apply(cfg)

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.New(color.FgRed).Fprintf(os.Stderr, "config: %s\n", e.Error())
		}
		log.Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func parseFlags(args []string) (*options, error) {
	opts := &options{set: map[string]bool{}}

	fs := flag.NewFlagSet("ragpage", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.url, "url", "", "Page URL to load")
	fs.StringVar(&opts.model, "model", "", "Chat model to use")
	fs.Float64Var(&opts.temperature, "temperature", 0, "Set the LLM temperature")
	fs.IntVar(&opts.topK, "k", 0, "Number of chunks retrieved per question")
	fs.IntVar(&opts.chunkSize, "chunk-size", 0, "Size of text chunks")
	fs.IntVar(&opts.chunkOverlap, "chunk-overlap", 0, "Overlap between text chunks")
	fs.StringVar(&opts.backend, "store", "", "Vector store backend (memory or pgvector)")
	fs.BoolVar(&opts.interactive, "interactive", false, "Keep asking questions after the fixed ones")
	fs.StringVar(&opts.serve, "serve", "", "Serve the websocket API on this address after ingesting")
	fs.BoolVar(&opts.stream, "stream", false, "Stream answers as they are generated")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	return opts, nil
}

func (o *options) apply(cfg *config.Config) {
	if o.set["url"] {
		cfg.Loader.URL = o.url
	}
	if o.set["model"] {
		cfg.LLM.Model = o.model
	}
	if o.set["temperature"] {
		cfg.LLM.Temperature = o.temperature
	}
	if o.set["k"] {
		cfg.RAG.TopK = o.topK
	}
	if o.set["chunk-size"] {
		cfg.Splitter.ChunkSize = o.chunkSize
	}
	if o.set["chunk-overlap"] {
		cfg.Splitter.ChunkOverlap = o.chunkOverlap
	}
	if o.set["store"] {
		cfg.Store.Backend = o.backend
	}
	if o.set["interactive"] {
		cfg.UI.Interactive = o.interactive
	}
	if o.set["serve"] {
		cfg.UI.ServeAddr = o.serve
	}
	if o.set["stream"] {
		cfg.UI.Streaming = o.stream
	}
}

// run ingests the page and asks the configured questions. The last answer
// is written to out as JSON, everything else goes to stderr.
func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	color.New(color.FgBlue).Fprintf(os.Stderr, "Loading %s\n", cfg.Loader.URL)

	progress := newIngestProgress()
	pipeline, vectorStore, err := rag.FromConfig(ctx, cfg, progress.update)
	if err != nil {
		return err
	}
	defer vectorStore.Close()

	n, err := pipeline.Ingest(ctx)
	progress.finish()
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "✓ Stored %d chunks\n", n)

	callOpts := rag.ChatConfig(cfg).CallOptions()

	spinner := getSpinner("Generating answers...")
	responses, err := pipeline.AskAll(ctx, cfg.RAG.Questions, callOpts...)
	spinner.Finish()
	if err != nil {
		return err
	}

	if len(responses) > 0 {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(responses[len(responses)-1]); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}

	if cfg.UI.ServeAddr != "" {
		ws := server.NewWSServer(pipeline)
		ws.Streaming = cfg.UI.Streaming
		ws.CallOptions = callOpts
		return serve(ctx, cfg.UI.ServeAddr, ws.Handler())
	}

	if cfg.UI.Interactive {
		return chatLoop(ctx, pipeline, in, cfg.UI.Streaming, callOpts)
	}

	return nil
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if !strings.Contains(addr, ":") {
		addr = ":" + addr
		srv.Addr = addr
	}
	log.Printf("Starting WebSocket server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
