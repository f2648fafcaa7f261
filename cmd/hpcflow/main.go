package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/gcapes/hpcflow-new/internal/schema"
	"github.com/gcapes/hpcflow-new/internal/watch"
	"github.com/gcapes/hpcflow-new/internal/workflow"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "new":
		runNew(os.Args[2:])
	case "show":
		runShow(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "version":
		fmt.Printf("hpcflow %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: hpcflow <command> [options]

commands:
  new <template.yaml> <path>   create a workflow from a template
  show <path>                  print a workflow summary
  watch <path>                 report external metadata changes
  version                      print version

options:
  --store fs|sqlite            storage backend for 'new' (default: fs)
  --log-level LEVEL            log level for 'watch' (default: info)`)
}

// loadDefinitions loads the built-in parameter and task schema
// definitions shipped with the binary.
func loadDefinitions() *schema.Definitions {
	defs := schema.NewDefinitions()
	if err := defs.LoadBuiltins(); err != nil {
		fmt.Fprintf(os.Stderr, "load builtin definitions: %v\n", err)
		os.Exit(1)
	}
	return defs
}

func runNew(args []string) {
	backend := "fs"
	var positional []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--store":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--store requires a value")
				os.Exit(1)
			}
			i++
			backend = args[i]
		default:
			positional = append(positional, args[i])
		}
	}
	if len(positional) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hpcflow new [--store fs|sqlite] <template.yaml> <path>")
		os.Exit(1)
	}
	templatePath, workflowPath := positional[0], positional[1]

	defs := loadDefinitions()

	f, err := os.Open(templatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open template: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	tpl, err := workflow.LoadTemplate(f, defs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load template: %v\n", err)
		os.Exit(1)
	}

	var w *workflow.Workflow
	switch backend {
	case "fs":
		w, err = workflow.CreateFS(workflowPath, tpl)
	case "sqlite":
		w, err = workflow.CreateSQLite(workflowPath, tpl)
	default:
		fmt.Fprintf(os.Stderr, "unknown store backend: %s\n", backend)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "create workflow: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	fmt.Printf("Created workflow %q at %s (%d tasks)\n", w.Name(), w.Location(), len(w.Tasks()))
}

// openWorkflow opens an existing workflow, choosing the backend by
// inspecting the path: a directory is a filesystem store, a file is a
// SQLite store.
func openWorkflow(path string) *workflow.Workflow {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open workflow: %v\n", err)
		os.Exit(1)
	}

	var w *workflow.Workflow
	if info.IsDir() {
		w, err = workflow.OpenFS(path)
	} else {
		w, err = workflow.OpenSQLite(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "open workflow: %v\n", err)
		os.Exit(1)
	}
	return w
}

func runShow(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: hpcflow show <path>")
		os.Exit(1)
	}

	w := openWorkflow(args[0])
	defer w.Close()

	md := w.Metadata()
	fmt.Printf("workflow: %s\n", md.Name)
	fmt.Printf("id:       %s\n", md.WorkflowID)
	fmt.Printf("location: %s\n", w.Location())
	fmt.Printf("tasks:    %d\n", len(md.Tasks))

	for _, t := range w.Tasks() {
		fmt.Printf("\n[%d] %s (insert_id=%d)\n", t.Index(), t.Name(), t.InsertID())

		inputData := t.InputData()
		types := make([]string, 0, len(inputData))
		for typ := range inputData {
			types = append(types, typ)
		}
		sort.Strings(types)
		for _, typ := range types {
			fmt.Printf("  input %s: refs=%v sources=%v\n", typ, inputData[typ], t.InputSources()[typ])
		}
	}
}

func runWatch(args []string) {
	level := "info"
	var positional []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--log-level":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--log-level requires a value")
				os.Exit(1)
			}
			i++
			level = args[i]
		default:
			positional = append(positional, args[i])
		}
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "usage: hpcflow watch [--log-level LEVEL] <path>")
		os.Exit(1)
	}

	w := openWorkflow(positional[0])
	defer w.Close()

	logger := log.New(os.Stderr, "", 0)
	watcher, err := watch.New(w.Store(), logger, watch.ParseLogLevel(level))
	if err != nil {
		fmt.Fprintf(os.Stderr, "create watcher: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go func() {
		for ev := range watcher.Events() {
			fmt.Printf("%s workflow %s metadata changed digest=%s\n",
				ev.ObservedAt.Format("15:04:05"), ev.Name, ev.Digest[:12])
		}
	}()

	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		os.Exit(1)
	}
}
