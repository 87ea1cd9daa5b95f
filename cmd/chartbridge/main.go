package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/chartbridge/chartbridge/internal/agent"
	"github.com/chartbridge/chartbridge/internal/audit"
	"github.com/chartbridge/chartbridge/internal/config"
	"github.com/chartbridge/chartbridge/internal/connector"
	"github.com/chartbridge/chartbridge/internal/desktop"
	"github.com/chartbridge/chartbridge/internal/engine"
	"github.com/chartbridge/chartbridge/internal/schema"
	"github.com/chartbridge/chartbridge/internal/server"
	"github.com/chartbridge/chartbridge/internal/visual"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serve(os.Args[2:])
	case "agent":
		runAgent(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  chartbridge serve --config <dir> [--addr <host:port>] [--store <file.json>] [--agent-cmd <cmd...>]")
	fmt.Fprintln(os.Stderr, "  chartbridge agent [--server <url>] [--callback-addr <host:port>] [--user <id>] [--picker-hotkey <combo>]")
	fmt.Fprintln(os.Stderr, "  chartbridge version")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "environment: MIDDLEWARE_TOKEN (required), GROQ_API_KEY, AUDIT_LOG_PATH")
}

func serve(args []string) {
	configDir := ""
	addr := ":8123"
	storePath := "data/visual_workflows.json"
	var agentCmd []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			configDir = args[i]
		case "--addr":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--addr requires a value")
				os.Exit(1)
			}
			addr = args[i]
		case "--store":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--store requires a value")
				os.Exit(1)
			}
			storePath = args[i]
		case "--agent-cmd":
			// Everything after --agent-cmd is the agent command line.
			agentCmd = args[i+1:]
			i = len(args)
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}

	if configDir == "" {
		usage()
		os.Exit(1)
	}
	token := os.Getenv("MIDDLEWARE_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "MIDDLEWARE_TOKEN is not set")
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "[chartbridge-server] ", log.LstdFlags)

	cat, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	pool := connector.NewRegistry()
	for name, cc := range cat.Connectors {
		c, err := connector.New(cc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connector %s: %v\n", name, err)
			os.Exit(1)
		}
		if err := pool.Register(name, c); err != nil {
			fmt.Fprintf(os.Stderr, "connector %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	auditLog, err := audit.Open("", logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	icd10Catalog := map[string]schema.ICD10Code{}
	for _, code := range cat.ICD10 {
		icd10Catalog[code.Code] = code
	}
	eng := engine.New(cat.Workflows, pool, schema.NewICD10Validator(icd10Catalog), auditLog, logger)

	store, err := visual.OpenStore(storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "visual store: %v\n", err)
		os.Exit(1)
	}
	executor := visual.NewExecutor(desktop.NewHost(), "http://127.0.0.1:8124", visual.NewLLMFormatter(), logger)

	var supervisor *server.Supervisor
	if len(agentCmd) > 0 {
		supervisor = server.NewSupervisor(agentCmd, nil, "", logger)
	}

	srv := server.New(server.Config{Addr: addr, Token: token, Version: version},
		eng, store, executor, auditLog, supervisor)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(args []string) {
	serverURL := "http://127.0.0.1:8123"
	callbackAddr := ":8124"
	userID := ""
	pickerHotkey := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--server":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--server requires a value")
				os.Exit(1)
			}
			serverURL = args[i]
		case "--callback-addr":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--callback-addr requires a value")
				os.Exit(1)
			}
			callbackAddr = args[i]
		case "--user":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--user requires a value")
				os.Exit(1)
			}
			userID = args[i]
		case "--picker-hotkey":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--picker-hotkey requires a value")
				os.Exit(1)
			}
			pickerHotkey = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}

	token := os.Getenv("MIDDLEWARE_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "MIDDLEWARE_TOKEN is not set")
		os.Exit(1)
	}

	a := agent.New(agent.Config{
		ServerURL:    serverURL,
		Token:        token,
		CallbackAddr: callbackAddr,
		PickerHotkey: pickerHotkey,
		UserID:       userID,
	}, desktop.NewHost(), agent.NewNoopHook())

	if err := a.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(1)
	}
}
