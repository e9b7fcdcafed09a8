// Package interactive provides the interactive command-line interface
// for hubclient-device.
//
// The console reads commands on its own goroutine. The client is not safe
// for concurrent use, so every command is handed to the DoWork loop through
// the post function and runs between two DoWork calls.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/hubclient/hubclient-go/pkg/client"
	"github.com/hubclient/hubclient-go/pkg/connection"
	"github.com/hubclient/hubclient-go/pkg/upload"
)

// Simulation is the telemetry generator controlled from the console.
type Simulation interface {
	Start()
	Stop()
	Running() bool
	Interval() time.Duration
	SetInterval(d time.Duration) error
}

// Console handles interactive mode for hubclient-device.
type Console struct {
	client *client.Client
	sim    Simulation
	post   func(func())
	rl     *readline.Instance
}

// New creates a console. post must run fn on the DoWork goroutine.
func New(c *client.Client, sim Simulation, post func(fn func())) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hub> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{client: c, sim: sim, post: post, rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		cmd, args, ok := parseLine(line)
		if !ok {
			continue
		}
		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
		if cmd == "help" || cmd == "?" {
			c.printHelp()
			continue
		}

		fn, err := c.command(cmd, args)
		if err != nil {
			fmt.Fprintln(c.rl.Stdout(), err)
			continue
		}
		c.post(fn)
	}
}

// command returns the action for cmd. Argument errors are reported before
// anything is posted to the loop.
func (c *Console) command(cmd string, args []string) (func(), error) {
	out := c.rl.Stdout()

	switch cmd {
	case "send", "s":
		if len(args) == 0 {
			return nil, errors.New("usage: send <text>")
		}
		text := strings.Join(args, " ")
		return func() {
			err := c.client.SendEventAsync(client.NewMessageFromString(text), func(r client.Result, _ any) {
				fmt.Fprintf(out, "event %q: %s\n", text, r)
			}, nil)
			printErr(out, err)
		}, nil

	case "report":
		if len(args) == 0 {
			return nil, errors.New("usage: report <json>")
		}
		body := strings.Join(args, " ")
		return func() {
			err := c.client.SendReportedState([]byte(body), func(r client.Result, _ any) {
				fmt.Fprintf(out, "reported state: %s\n", r)
			}, nil)
			printErr(out, err)
		}, nil

	case "upload":
		if len(args) < 2 {
			return nil, errors.New("usage: upload <destination> <text>")
		}
		dest, text := args[0], strings.Join(args[1:], " ")
		return func() {
			err := c.client.UploadToBlob(dest, []byte(text), func(r upload.Result, _ any) {
				fmt.Fprintf(out, "upload %s: %s\n", dest, r)
			}, nil)
			printErr(out, err)
		}, nil

	case "policy":
		if len(args) == 0 {
			return func() {
				kind, limit, err := c.client.GetRetryPolicy()
				if printErr(out, err) {
					return
				}
				fmt.Fprintf(out, "retry policy: %s, timeout limit %ds\n", kind, limit)
			}, nil
		}
		kind, err := connection.ParsePolicyKind(args[0])
		if err != nil {
			return nil, err
		}
		var limit uint64
		if len(args) > 1 {
			if limit, err = strconv.ParseUint(args[1], 10, 32); err != nil {
				return nil, fmt.Errorf("invalid timeout limit: %s", args[1])
			}
		}
		return func() {
			printErr(out, c.client.SetRetryPolicy(kind, uint(limit)))
		}, nil

	case "option", "set":
		if len(args) != 2 {
			return nil, errors.New("usage: option <name> <value>")
		}
		name, value := args[0], ParseValue(args[1])
		return func() {
			if !printErr(out, c.client.SetOption(name, value)) {
				fmt.Fprintf(out, "%s staged\n", name)
			}
		}, nil

	case "reset":
		return func() { printErr(out, c.client.ResetConnection()) }, nil

	case "status":
		return func() { c.printStatus(out) }, nil

	case "start", "sim-start":
		return c.sim.Start, nil

	case "stop", "sim-stop":
		return c.sim.Stop, nil

	case "interval":
		if len(args) != 1 {
			return nil, errors.New("usage: interval <duration>")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %s", args[0])
		}
		return func() { printErr(out, c.sim.SetInterval(d)) }, nil

	default:
		return nil, fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

func (c *Console) printStatus(out io.Writer) {
	sendStatus, err := c.client.GetSendStatus()
	if printErr(out, err) {
		return
	}
	kind, limit, _ := c.client.GetRetryPolicy()
	twin := c.client.TwinState()
	up := c.client.UploadSession()
	opts := c.client.Options()

	fmt.Fprintf(out, "Connection:      %s\n", c.client.ConnectionState())
	fmt.Fprintf(out, "Send status:     %s\n", sendStatus)
	fmt.Fprintf(out, "Retry policy:    %s (limit %ds)\n", kind, limit)
	fmt.Fprintf(out, "Twin:            reported v%d, desired v%d, %d pending\n",
		twin.LastReportedVersion, twin.LastDesiredVersion, twin.PendingReports)
	if up.Destination != "" {
		fmt.Fprintf(out, "Upload:          %s %s (%d blocks, %d bytes)\n",
			up.Destination, up.State, up.BlockIndex, up.BytesTransferred)
	}
	if last, err := c.client.GetLastMessageReceiveTime(); err == nil {
		fmt.Fprintf(out, "Last message:    %s\n", last.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Message timeout: %v\n", opts.MessageTimeout)
	fmt.Fprintf(out, "Protocol trace:  %t\n", opts.LogTrace)
	fmt.Fprintf(out, "Simulation:      %t (every %v)\n", c.sim.Running(), c.sim.Interval())
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Hub Device Commands:
  Telemetry:
    send <text>              - Send a device-to-cloud event
    report <json>            - Send a reported-properties patch
    upload <dest> <text>     - Upload text to a blob

  Connection:
    status                   - Show client status
    policy [name [limit]]    - Show or set the retry policy
    option <name> <value>    - Set a client option (e.g. logtrace true)
    reset                    - Reconnect after the retry policy expired

  Simulation:
    start                    - Start telemetry
    stop                     - Stop telemetry
    interval <duration>      - Set the telemetry period

  Other:
    help                     - Show this help
    quit                     - Exit`)
}

func completer() *readline.PrefixCompleter {
	policies := make([]readline.PrefixCompleterInterface, 0, 7)
	for k := connection.PolicyNone; k <= connection.PolicyRandom; k++ {
		policies = append(policies, readline.PcItem(strings.ToLower(k.String())))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("send"),
		readline.PcItem("report"),
		readline.PcItem("upload"),
		readline.PcItem("status"),
		readline.PcItem("policy", policies...),
		readline.PcItem("option",
			readline.PcItem("logtrace"),
			readline.PcItem("messageTimeout"),
			readline.PcItem("keepalive"),
			readline.PcItem("retry_interval_sec"),
			readline.PcItem("retry_max_delay_secs"),
		),
		readline.PcItem("reset"),
		readline.PcItem("start"),
		readline.PcItem("stop"),
		readline.PcItem("interval"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// parseLine splits a command line into a lower-cased command and its arguments.
func parseLine(line string) (string, []string, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil, false
	}
	return strings.ToLower(parts[0]), parts[1:], true
}

// ParseValue converts a console argument into the value type options expect:
// integers, booleans, otherwise the string itself.
func ParseValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// printErr prints err if non-nil and reports whether it did.
func printErr(out io.Writer, err error) bool {
	if err == nil {
		return false
	}
	fmt.Fprintf(out, "error: %v\n", err)
	return true
}
