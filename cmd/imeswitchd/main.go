// imeswitchd - context-aware input method switching daemon
//
//	imeswitchd run                 Run the daemon in the foreground
//	imeswitchd status              Show daemon status
//	imeswitchd stop                Stop a running daemon
//	imeswitchd classify <file> <line>:<col>
//	                               Classify one cursor position and exit
//	imeswitchd version             Print the version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"imeswitchd/internal/classify"
	"imeswitchd/internal/config"
	"imeswitchd/internal/daemon"
	"imeswitchd/internal/ipc"
	"imeswitchd/internal/logging"
	"imeswitchd/internal/mode"
	"imeswitchd/internal/policy"
)

// Version is stamped by the build.
var Version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "stop":
		cmdStop()
	case "classify":
		cmdClassify()
	case "version":
		fmt.Println(Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`imeswitchd - context-aware input method switching

USAGE:
    imeswitchd <command> [options]

COMMANDS:
    run                      Run the daemon in the foreground
    status                   Show status of a running daemon
    stop                     Stop a running daemon
    classify <file> <l>:<c>  Classify a cursor position and exit
    version                  Print the version
    help                     Show this help message

Editor plugins connect over a local socket and stream cursor and focus
events. The daemon classifies the syntactic region under the cursor with
tree-sitter and switches the system input method to match: Latin in code,
the configured preference in comments, strings, and doc comments.

Supported languages: ` + strings.Join(classify.SupportedLanguages(), ", "))
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", config.ConfigPath(), "Configuration file path")
	fs.Parse(os.Args[2:])

	if _, created, err := config.LoadOrCreate(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	} else if created {
		fmt.Fprintf(os.Stderr, "Wrote default config to %s\n", *configPath)
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	d, err := daemon.New(cfg, loader, Version, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	socketPath := fs.String("socket", config.DefaultSocketPath(), "Daemon socket path")
	fs.Parse(os.Args[2:])

	status, err := fetchStatus(*socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon not reachable: %v\n", err)
		os.Exit(1)
	}
	printStatus(status)
}

func cmdStop() {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	pidFile := fs.String("pid-file", filepath.Join(config.PlatformRuntimeDir(), "imeswitchd.pid"), "PID file path")
	fs.Parse(os.Args[2:])

	pid, err := daemon.ReadPidFile(*pidFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No running daemon found: %v\n", err)
		os.Exit(1)
	}
	if err := daemon.StopProcess(pid); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping daemon (pid %d): %v\n", pid, err)
		os.Exit(1)
	}
	fmt.Printf("Sent stop signal to daemon (pid %d)\n", pid)
}

func cmdClassify() {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	language := fs.String("lang", "", "Language override (default: by file extension)")
	configPath := fs.String("config", config.ConfigPath(), "Configuration file path")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: imeswitchd classify <file> <line>:<column>")
		os.Exit(1)
	}

	path := fs.Arg(0)
	line, column, err := parsePosition(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid position %q: %v\n", fs.Arg(1), err)
		os.Exit(1)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	lang := *language
	if lang == "" {
		lang = languageForFile(path)
	}
	doc, err := classify.NewDocument(lang, source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	c := classify.Classify(doc, doc.OffsetAt(line, column))
	target := policy.Resolve(c, cfg)

	fmt.Printf("region:     %s\n", c.Kind)
	fmt.Printf("suggested:  %s\n", c.SuggestedMode)
	fmt.Printf("confidence: %.2f\n", c.Confidence)
	if c.Description != "" {
		fmt.Printf("detail:     %s\n", c.Description)
	}
	if target == mode.Undetermined {
		fmt.Println("target:     none (policy has no opinion)")
	} else {
		fmt.Printf("target:     %s\n", target)
	}
}

func fetchStatus(socketPath string) (*ipc.StatusReply, error) {
	c, err := ipc.Dial(socketPath)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if _, err := c.Hello("imeswitchd-cli", Version); err != nil {
		return nil, err
	}
	resp, err := c.Call(ipc.TypeStatus, nil)
	if err != nil {
		return nil, err
	}
	var status ipc.StatusReply
	if err := resp.DecodePayload(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func printStatus(s *ipc.StatusReply) {
	fmt.Printf("imeswitchd %s\n", s.Version)
	fmt.Printf("  uptime:    %ds\n", s.UptimeSec)
	fmt.Printf("  switching: %s\n", enabledWord(s.Enabled))
	fmt.Printf("  backend:   %s (available: %v)\n", s.Backend, s.Available)
	fmt.Printf("  surfaces:  %d\n", len(s.Surfaces))
	for _, surf := range s.Surfaces {
		focus := " "
		if surf.Focused {
			focus = "*"
		}
		fmt.Printf("   %s %-20s %-10s mode=%-12s region=%-12s cycles=%d\n",
			focus, surf.ID, surf.Language, surf.LogicalMode, surf.LastRegion, surf.Cycles)
	}
	if len(s.Suppressions) > 0 {
		fmt.Println("  suppressions:")
		for reason, count := range s.Suppressions {
			fmt.Printf("    %-24s %d\n", reason, count)
		}
	}
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// parsePosition parses "line:column" with zero-based numbers.
func parsePosition(s string) (line, column int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want line:column")
	}
	line, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	column, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return line, column, nil
}

func languageForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".c", ".h":
		return "c"
	case ".cc", ".cpp", ".cxx", ".hpp":
		return "cpp"
	case ".js", ".mjs", ".jsx":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "tsx"
	case ".py":
		return "python"
	case ".sh", ".bash":
		return "bash"
	default:
		return ""
	}
}
