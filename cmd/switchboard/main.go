// Command switchboard is the Switchboard CLI client.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GoCodeAlone/switchboard/crypt"
	"github.com/GoCodeAlone/switchboard/internal/version"
	"github.com/GoCodeAlone/switchboard/protocol"
	"github.com/GoCodeAlone/switchboard/update"
)

const defaultServer = "http://localhost:8765"

func main() {
	var (
		serverURL = flag.String("server", defaultServer, "switchboard server URL")
		token     = flag.String("token", os.Getenv("SWITCHBOARD_TOKEN"), "JWT auth token")
		priority  = flag.String("priority", "normal", "message priority for send (low|normal|high|critical)")
		wait      = flag.Duration("wait", 30*time.Second, "how long send waits for the response")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		Token:      *token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "version":
		err = cmdVersion(rest)
	case "status":
		err = cli.cmdStatus(rest)
	case "stats":
		err = cli.cmdStats(rest)
	case "send":
		err = cli.cmdSend(rest, protocol.Priority(*priority), *wait)
	case "completed":
		err = cli.cmdCompleted(rest)
	case "connections":
		err = cli.cmdConnections(rest)
	case "keygen":
		err = cmdKeygen(rest)
	case "hash":
		err = cmdHash(rest)
	case "update":
		err = cmdUpdate(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `switchboard, the Switchboard CLI

Usage:
  switchboard [flags] <command> [args]

Flags:
  --server   <url>       server URL (default: http://localhost:8765)
  --token    <token>     JWT auth token (or $SWITCHBOARD_TOKEN)
  --priority <priority>  priority for send (default: normal)
  --wait     <duration>  how long send waits for a reply (default: 30s)

Commands:
  version                     print version
  status                      show server status
  stats                       show bus statistics
  send <from> <to> <text...>  send a message and wait for the reply
  completed                   list recent completions
  connections                 list registered agents
  keygen [pair]               generate a secret key, or a key pair
  hash <password>             bcrypt-hash a password for the config file
  update [apply]              check for a newer release, apply to install it
`)
}

// --- version ---

func cmdVersion(_ []string) error {
	fmt.Printf("switchboard %s (commit %s, built %s)\n",
		version.Version, version.Commit, version.BuildDate)
	return nil
}

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// get performs a GET and decodes JSON into v.
func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// post performs a POST and decodes JSON response into v (may be nil).
func (c *Client) post(path string, body io.Reader, v any) error {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v != nil && resp.ContentLength != 0 {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

// --- status ---

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]any
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Printf("status:  %s\n", strVal(result["status"]))
	fmt.Printf("version: %s\n", strVal(result["version"]))
	if up, ok := result["uptime_seconds"].(float64); ok {
		fmt.Printf("uptime:  %s\n", (time.Duration(up) * time.Second).String())
	}
	return nil
}

// --- stats ---

func (c *Client) cmdStats(_ []string) error {
	var st map[string]any
	if err := c.get("/api/stats", &st); err != nil {
		return err
	}
	fmt.Printf("pending:         %s\n", strVal(st["pending"]))
	fmt.Printf("in flight:       %s\n", strVal(st["in_flight"]))
	fmt.Printf("total processed: %s\n", strVal(st["total_processed"]))
	fmt.Printf("total errors:    %s\n", strVal(st["total_errors"]))
	fmt.Printf("avg latency:     %sms\n", strVal(st["avg_latency_ms"]))
	if agents, ok := st["active_agents"].([]any); ok && len(agents) > 0 {
		names := make([]string, 0, len(agents))
		for _, a := range agents {
			names = append(names, strVal(a))
		}
		fmt.Printf("active agents:   %s\n", strings.Join(names, ", "))
	}
	return nil
}

// --- send ---

func (c *Client) cmdSend(args []string, p protocol.Priority, wait time.Duration) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: switchboard send <from> <to> <text...>")
	}
	from, to := args[0], args[1]
	text := strings.Join(args[2:], " ")

	m := protocol.NewRequest(from, to, text).WithPriority(p)
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	var submitted map[string]string
	if err := c.post("/api/messages", strings.NewReader(string(body)), &submitted); err != nil {
		return err
	}
	fmt.Printf("queued %s\n", submitted["key"])

	// The wait endpoint holds the request open until completion, so the
	// HTTP client needs a longer deadline than the default.
	waitClient := &Client{
		BaseURL:    c.BaseURL,
		Token:      c.Token,
		HTTPClient: &http.Client{Timeout: wait + 5*time.Second},
	}
	var resp protocol.Message
	path := fmt.Sprintf("/api/messages/%s/wait?timeout=%s", m.Key, wait)
	if err := waitClient.get(path, &resp); err != nil {
		return err
	}

	fmt.Printf("[%s] %s: %s\n", resp.Status, resp.From, resp.Payload.Content)
	return nil
}

// --- completed ---

func (c *Client) cmdCompleted(_ []string) error {
	var completions []map[string]any
	if err := c.get("/api/completed?limit=20", &completions); err != nil {
		return err
	}
	if len(completions) == 0 {
		fmt.Println("no completed messages")
		return nil
	}
	fmt.Printf("%-10s %-12s %-12s %-8s %-10s\n", "KEY", "FROM", "TO", "STATUS", "LATENCY")
	fmt.Println(strings.Repeat("-", 58))
	for _, comp := range completions {
		msg, _ := comp["message"].(map[string]any)
		resp, _ := comp["response"].(map[string]any)
		fmt.Printf("%-10s %-12s %-12s %-8s %-10s\n",
			truncate(strVal(msg["key"]), 9),
			truncate(strVal(msg["from"]), 11),
			truncate(strVal(msg["to"]), 11),
			strVal(resp["status"]),
			strVal(resp["latency_ms"])+"ms",
		)
	}
	return nil
}

// --- connections ---

func (c *Client) cmdConnections(_ []string) error {
	var conns []map[string]any
	if err := c.get("/api/connections", &conns); err != nil {
		return err
	}
	if len(conns) == 0 {
		fmt.Println("no agents registered")
		return nil
	}
	title := cases.Title(language.English)
	fmt.Printf("%-20s %-16s %-10s\n", "AGENT", "TYPE", "CONNECTED")
	fmt.Println(strings.Repeat("-", 48))
	for _, conn := range conns {
		fmt.Printf("%-20s %-16s %-10s\n",
			strVal(conn["agent_id"]),
			title.String(strVal(conn["agent_type"])),
			strVal(conn["connected"]),
		)
	}
	return nil
}

// --- keygen ---

func cmdKeygen(args []string) error {
	if len(args) > 0 && args[0] == "pair" {
		pair, err := crypt.GenerateKeyPair()
		if err != nil {
			return err
		}
		fmt.Printf("public:  %s\n", pair.PublicEncoded())
		fmt.Printf("private: %s\n", base64.StdEncoding.EncodeToString(pair.Private[:]))
		return nil
	}

	key, err := crypt.NewSecretKey()
	if err != nil {
		return err
	}
	fmt.Println(key.Encode())
	return nil
}

// --- hash ---

func cmdHash(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: switchboard hash <password>")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}

// --- update ---

func cmdUpdate(args []string) error {
	u := update.New(version.Version)
	rel, err := u.CheckForUpdate()
	if err != nil {
		return fmt.Errorf("check for update: %w", err)
	}
	if rel == nil {
		fmt.Println("switchboard is up to date")
		return nil
	}
	if len(args) == 0 || args[0] != "apply" {
		fmt.Printf("update available: %s (run 'switchboard update apply' to install)\n", rel.Version)
		return nil
	}
	if err := u.ApplyUpdate(rel); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	fmt.Printf("updated to %s\n", rel.Version)
	return nil
}

// --- helpers ---

func strVal(v any) string {
	if v == nil {
		return ""
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprint(int64(f))
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
