// imeswitchctl - control utility for a running imeswitchd
//
//	imeswitchctl status            Show daemon status
//	imeswitchctl enable            Enable automatic switching
//	imeswitchctl disable           Disable automatic switching
//	imeswitchctl history [-n N]    Show recent switch history
//	imeswitchctl watch             Stream switch events
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"imeswitchd/internal/config"
	"imeswitchd/internal/ipc"
)

var Version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		cmdStatus()
	case "enable":
		cmdToggle(ipc.TypeEnable)
	case "disable":
		cmdToggle(ipc.TypeDisable)
	case "history":
		cmdHistory()
	case "watch":
		cmdWatch()
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
	fmt.Println(`imeswitchctl - control a running imeswitchd

USAGE:
    imeswitchctl <command> [options]

COMMANDS:
    status           Show daemon status
    enable           Enable automatic input method switching
    disable          Disable automatic input method switching
    history [-n N]   Show recent switch history (default 20 entries)
    watch            Stream mode change events until interrupted
    version          Print the version
    help             Show this help message

All commands accept -socket to override the daemon socket path.`)
}

func connect(socketPath string) *ipc.Client {
	c, err := ipc.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon not reachable at %s: %v\n", socketPath, err)
		os.Exit(1)
	}
	if _, err := c.Hello("imeswitchctl", Version); err != nil {
		c.Close()
		fmt.Fprintf(os.Stderr, "Handshake failed: %v\n", err)
		os.Exit(1)
	}
	return c
}

func socketFlag(fs *flag.FlagSet) *string {
	return fs.String("socket", config.DefaultSocketPath(), "Daemon socket path")
}

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	socketPath := socketFlag(fs)
	fs.Parse(os.Args[2:])

	c := connect(*socketPath)
	defer c.Close()

	resp, err := c.Call(ipc.TypeStatus, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var status ipc.StatusReply
	if err := resp.DecodePayload(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("imeswitchd %s, up %s\n", status.Version, (time.Duration(status.UptimeSec) * time.Second).String())
	fmt.Printf("  switching: %s\n", onOff(status.Enabled))
	fmt.Printf("  backend:   %s (available: %v)\n", status.Backend, status.Available)
	if len(status.Surfaces) == 0 {
		fmt.Println("  no open surfaces")
		return
	}
	for _, s := range status.Surfaces {
		focus := " "
		if s.Focused {
			focus = "*"
		}
		fmt.Printf("  %s %-20s %-10s mode=%-12s region=%-12s cycles=%d\n",
			focus, s.ID, s.Language, s.LogicalMode, s.LastRegion, s.Cycles)
	}
}

func cmdToggle(msgType string) {
	fs := flag.NewFlagSet(msgType, flag.ExitOnError)
	socketPath := socketFlag(fs)
	fs.Parse(os.Args[2:])

	c := connect(*socketPath)
	defer c.Close()

	if _, err := c.Call(msgType, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if msgType == ipc.TypeEnable {
		fmt.Println("Automatic switching enabled")
	} else {
		fmt.Println("Automatic switching disabled")
	}
}

func cmdHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	socketPath := socketFlag(fs)
	limit := fs.Int("n", 20, "Number of entries to show")
	fs.Parse(os.Args[2:])

	c := connect(*socketPath)
	defer c.Close()

	resp, err := c.Call(ipc.TypeHistory, &ipc.HistoryRequest{Limit: *limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var reply ipc.HistoryReply
	if err := resp.DecodePayload(&reply); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(reply.Entries) == 0 {
		fmt.Println("No switch history recorded")
		return
	}
	for _, e := range reply.Entries {
		fmt.Printf("%s  %-20s %-10s %-12s -> %-12s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.SurfaceID, e.Language, e.Region, e.Target, e.Decision)
	}
}

func cmdWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	socketPath := socketFlag(fs)
	fs.Parse(os.Args[2:])

	c := connect(*socketPath)
	defer c.Close()

	if err := c.Subscribe(); err != nil {
		fmt.Fprintf(os.Stderr, "Subscribe failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "Watching for mode changes (Ctrl-C to stop)")

	for {
		env, err := c.Next(time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection lost: %v\n", err)
			os.Exit(1)
		}
		switch env.Type {
		case ipc.TypeModeChanged:
			var ev ipc.ModeChangedEvent
			if err := env.DecodePayload(&ev); err != nil {
				continue
			}
			fmt.Printf("%s  %-20s -> %-12s (region %s, confidence %.2f)\n",
				ev.Timestamp.Local().Format("15:04:05"), ev.SurfaceID, ev.Mode, ev.Region, ev.Confidence)
		case ipc.TypeFocusEvent:
			var ev ipc.FocusChangedEvent
			if err := env.DecodePayload(&ev); err != nil {
				continue
			}
			fmt.Printf("%s  %-20s focus %s\n",
				ev.Timestamp.Local().Format("15:04:05"), ev.SurfaceID, onOff(ev.Focused))
		case ipc.TypeSwitchFailed:
			var ev ipc.SwitchFailedEvent
			if err := env.DecodePayload(&ev); err != nil {
				continue
			}
			fmt.Printf("%s  %-20s switch to %s FAILED: %s\n",
				ev.Timestamp.Local().Format("15:04:05"), ev.SurfaceID, ev.Mode, ev.Error)
		}
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
