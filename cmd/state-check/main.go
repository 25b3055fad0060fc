// Command state-check validates a ticket_ledger snapshot file without
// starting the bot.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitCorrupt = 2
)

type snapshotDoc struct {
	TicketCounter int64                      `json:"ticket_counter"`
	Balances      map[string]json.RawMessage `json:"balances"`
	Usernames     map[string]string          `json:"usernames"`
	Links         map[string]json.RawMessage `json:"links"`
	Invites       map[string]int64           `json:"invites"`
	Panel         *struct {
		Guild   json.Number `json:"guild"`
		Channel json.Number `json:"channel"`
		Message json.Number `json:"message"`
	} `json:"panel"`
}

type summary struct {
	Counter  int64
	Accounts int
	Invites  int64
	Total    float64
	Panel    string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, time.Now))
}

func run(args []string, stdout, stderr io.Writer, now func() time.Time) int {
	flags := pflag.NewFlagSet("state-check", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	path := flags.StringP("path", "p", envOr("STATE_PATH", "data.json"), "snapshot file to check")
	quarantine := flags.Bool("quarantine", false, "move a corrupt snapshot aside so the next start bootstraps")
	verbose := flags.BoolP("verbose", "v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		return exitFailure
	}

	log := newLogger(stderr, *verbose)
	defer log.Sync()

	info, err := os.Stat(*path)
	if os.IsNotExist(err) {
		fmt.Fprintf(stdout, "%s: no snapshot; the bot will start with empty state\n", *path)
		return exitOK
	}
	if err != nil {
		log.Errorw("stat failed", "path", *path, "error", err)
		return exitFailure
	}
	log.Debugw("checking snapshot", "path", *path, "size", info.Size())

	raw, err := os.ReadFile(*path)
	if err != nil {
		log.Errorw("read failed", "path", *path, "error", err)
		return exitFailure
	}

	sum, err := check(raw)
	if err != nil {
		fmt.Fprintf(stdout, "%s: corrupt: %v\n", *path, err)
		if !*quarantine {
			return exitCorrupt
		}
		target := *path + ".corrupt-" + strconv.FormatInt(now().Unix(), 10)
		if err := os.Rename(*path, target); err != nil {
			log.Errorw("quarantine failed", "path", *path, "error", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "moved to %s\n", target)
		return exitCorrupt
	}

	fmt.Fprintf(stdout, "%s: ok (%s, modified %s)\n", *path, humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
	fmt.Fprintf(stdout, "  ticket_counter: %d\n", sum.Counter)
	fmt.Fprintf(stdout, "  accounts:       %d\n", sum.Accounts)
	fmt.Fprintf(stdout, "  invites:        %d\n", sum.Invites)
	fmt.Fprintf(stdout, "  total balance:  %s\n", humanize.Commaf(math.Round(sum.Total)))
	fmt.Fprintf(stdout, "  panel:          %s\n", sum.Panel)
	return exitOK
}

func newLogger(w io.Writer, verbose bool) *zap.SugaredLogger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(w, "logger:", err)
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// check applies the same rules the bot applies when loading a snapshot.
func check(raw []byte) (summary, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return summary{}, err
	}
	if doc.TicketCounter < 0 {
		return summary{}, fmt.Errorf("negative ticket_counter %d", doc.TicketCounter)
	}

	sum := summary{Counter: doc.TicketCounter, Panel: "none"}
	accounts := make(map[string]struct{})
	for id, value := range doc.Balances {
		amount, err := balanceValue(value)
		if err != nil {
			return summary{}, fmt.Errorf("balance for %s: %v", id, err)
		}
		sum.Total += amount
		accounts[id] = struct{}{}
	}
	for id, n := range doc.Invites {
		if n < 0 {
			return summary{}, fmt.Errorf("invites for %s is %d", id, n)
		}
		sum.Invites += n
		accounts[id] = struct{}{}
	}
	sum.Accounts = len(accounts)
	if doc.Panel != nil {
		sum.Panel = fmt.Sprintf("guild %s channel %s message %s", doc.Panel.Guild, doc.Panel.Channel, doc.Panel.Message)
	}
	return sum, nil
}

var amountPattern = regexp.MustCompile(`^([\d,.]+)\s*([a-z]*)$`)

var amountMultipliers = map[string]float64{
	"k": 1e3, "m": 1e6, "b": 1e9, "t": 1e12,
	"qa": 1e15, "qi": 1e18, "sx": 1e21,
	"sp": 1e24, "oc": 1e27,
}

func balanceValue(value json.RawMessage) (float64, error) {
	var n json.Number
	if err := json.Unmarshal(value, &n); err == nil {
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return validAmount(f)
	}
	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return 0, err
	}
	match := amountPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(text)))
	if match == nil {
		return 0, fmt.Errorf("unreadable amount %q", text)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("unreadable amount %q", text)
	}
	if mult, ok := amountMultipliers[match[2]]; ok {
		f *= mult
	}
	return validAmount(f)
}

func validAmount(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("invalid amount %v", f)
	}
	return f, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
