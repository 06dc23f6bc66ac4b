package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"askdocs/internal/config"
	"askdocs/internal/logging"
	"askdocs/internal/server"
	"askdocs/internal/service"
	"askdocs/internal/tui"
	"askdocs/internal/watcher"
)

const usage = `Usage: askdocs [-config=config.yaml] <command> [args]

Commands:
  ingest <path|dir|glob>...   index .pdf, .txt and .md documents
  ask [-top-k=N] <question>   answer a question from the indexed documents
  serve                       run the HTTP API
  watch <dir>                 ingest documents as they change in dir
  tui                         interactive question prompt
`

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./askdocs.yaml or ~/.config/askdocs/config.yaml if not provided)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	var out io.Writer = os.Stderr
	if args[0] == "tui" {
		out = io.Discard
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, out)
	if err != nil {
		logrus.Fatalf("failed to init logging: %v", err)
	}

	svc, err := service.FromConfig(cfg, log)
	if err != nil {
		log.Fatalf("failed to build service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = svc.Open(ctx)
	if err == nil {
		err = run(ctx, cfg, svc, log, args[0], args[1:])
	}
	stop()
	if cerr := svc.Close(); cerr != nil {
		log.WithError(cerr).Warn("close failed")
	}
	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, svc *service.Service, log *logrus.Logger, cmd string, args []string) error {
	switch cmd {
	case "ingest":
		if len(args) == 0 {
			return fmt.Errorf("ingest: no paths given")
		}
		results, err := svc.IngestFiles(ctx, args)
		for _, r := range results {
			fmt.Printf("%s\t%s\t%d chunks\n", r.DocumentID, r.Name, r.Chunks)
		}
		return err

	case "ask":
		fs := flag.NewFlagSet("ask", flag.ContinueOnError)
		topK := fs.Int("top-k", 0, "number of passages to retrieve (0 uses retrieval.top_k)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		ans, err := svc.Ask(ctx, strings.Join(fs.Args(), " "), *topK)
		if err != nil {
			return err
		}
		fmt.Println(ans.Text)
		fmt.Println()
		for i, p := range ans.Passages {
			fmt.Printf("[%d] score=%.3f doc=%s chars %d-%d\n", i+1, p.Score, p.DocumentID, p.Start, p.End)
		}
		return nil

	case "serve":
		srv := server.New(server.Config{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		}, svc, log)
		return srv.Run(ctx)

	case "watch":
		if len(args) != 1 {
			return fmt.Errorf("watch: expected one directory")
		}
		w, err := watcher.New(args[0], time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond,
			func(ctx context.Context, path, text string) (string, error) {
				res, err := svc.Ingest(ctx, path, text)
				return res.DocumentID, err
			}, log)
		if err != nil {
			return err
		}
		return w.Run(ctx)

	case "tui":
		st, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		summary := fmt.Sprintf("%d documents, %d passages indexed (%s embedder, %s generator)",
			st.Documents, st.Vectors, st.Embedder, st.Generator)
		_, err = tea.NewProgram(tui.New(svc, summary, 0), tea.WithContext(ctx)).Run()
		return err

	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}
