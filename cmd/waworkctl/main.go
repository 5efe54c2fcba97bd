// waworkctl is a small HTTP client for the worker gateway, useful for
// checking the session and sending messages from scripts.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

func main() {
	addrFlag := flag.String("addr", "http://127.0.0.1:3001", "gateway base URL")
	jsonFlag := flag.Bool("json", false, "output raw JSON")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := &ctl{
		base:    *addrFlag,
		jsonOut: *jsonFlag,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	switch args[0] {
	case "status":
		c.cmdStatus()
	case "chats":
		c.cmdChats()
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: waworkctl messages <jid> [limit]")
			os.Exit(1)
		}
		limit := "50"
		if len(args) >= 3 {
			limit = args[2]
		}
		c.cmdMessages(args[1], limit)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: waworkctl send <to> <message>")
			os.Exit(1)
		}
		c.cmdSend(args[1], args[2])
	case "queue":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: waworkctl queue <to> <message>")
			os.Exit(1)
		}
		c.cmdQueue(args[1], args[2])
	case "logout":
		c.cmdPost("/logout")
	case "reconnect":
		c.cmdPost("/reconnect")
	case "probe":
		c.cmdProbe()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: waworkctl [--addr <url>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                  Show worker and session status")
	fmt.Fprintln(os.Stderr, "  chats                   List chats")
	fmt.Fprintln(os.Stderr, "  messages <jid> [limit]  List messages for a chat")
	fmt.Fprintln(os.Stderr, "  send <to> <message>     Send a message now")
	fmt.Fprintln(os.Stderr, "  queue <to> <message>    Queue a message for delivery")
	fmt.Fprintln(os.Stderr, "  logout                  Log out and clear credentials")
	fmt.Fprintln(os.Stderr, "  reconnect               Force a reconnect")
	fmt.Fprintln(os.Stderr, "  probe                   Exit 0 if the worker is reachable")
}

type ctl struct {
	base    string
	jsonOut bool
	http    *http.Client
}

func (c *ctl) get(path string) []byte {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach worker at %s: %v\n", c.base, err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", resp.Status, bytes.TrimSpace(body))
		os.Exit(1)
	}
	return body
}

func (c *ctl) post(path string, payload any) []byte {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		body = bytes.NewReader(raw)
	}
	resp, err := c.http.Post(c.base+path, "application/json", body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach worker at %s: %v\n", c.base, err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", resp.Status, bytes.TrimSpace(out))
		os.Exit(1)
	}
	return out
}

func (c *ctl) cmdStatus() {
	body := c.get("/status")
	if c.jsonOut {
		printJSON(body)
		return
	}
	var resp struct {
		Status   string `json:"status"`
		WhatsApp struct {
			Status string `json:"status"`
			User   *struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"user"`
			HasQR      bool `json:"hasQR"`
			ChatsCount int  `json:"chatsCount"`
		} `json:"whatsapp"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Worker:   %s\n", resp.Status)
	fmt.Printf("WhatsApp: %s\n", resp.WhatsApp.Status)
	if resp.WhatsApp.User != nil {
		fmt.Printf("User:     %s (%s)\n", resp.WhatsApp.User.Name, resp.WhatsApp.User.ID)
	}
	if resp.WhatsApp.HasQR {
		fmt.Println("QR:       pairing code available")
	}
	fmt.Printf("Chats:    %d\n", resp.WhatsApp.ChatsCount)
}

func (c *ctl) cmdChats() {
	body := c.get("/chats")
	if c.jsonOut {
		printJSON(body)
		return
	}
	var chats []struct {
		JID         string `json:"jid"`
		Name        string `json:"name"`
		LastMessage string `json:"lastMessage"`
		Unread      int    `json:"unread"`
	}
	if err := json.Unmarshal(body, &chats); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, ch := range chats {
		unread := ""
		if ch.Unread > 0 {
			unread = fmt.Sprintf(" [%d unread]", ch.Unread)
		}
		fmt.Printf("%-30s %s%s\n", ch.Name, ch.LastMessage, unread)
	}
}

func (c *ctl) cmdMessages(jid, limit string) {
	body := c.get("/chats/" + url.PathEscape(jid) + "/messages?limit=" + url.QueryEscape(limit))
	if c.jsonOut {
		printJSON(body)
		return
	}
	var msgs []struct {
		Direction  string    `json:"direction"`
		SenderName string    `json:"senderName"`
		Text       string    `json:"text"`
		Timestamp  time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &msgs); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, m := range msgs {
		who := m.SenderName
		if m.Direction == "outbound" {
			who = "me"
		}
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04"), who, m.Text)
	}
}

func (c *ctl) cmdSend(to, message string) {
	body := c.post("/send", map[string]string{"to": to, "message": message})
	if c.jsonOut {
		printJSON(body)
		return
	}
	var resp struct {
		MessageID string `json:"messageId"`
	}
	_ = json.Unmarshal(body, &resp)
	fmt.Printf("Sent. Message ID: %s\n", resp.MessageID)
}

func (c *ctl) cmdQueue(to, message string) {
	body := c.post("/outbox", map[string]string{"to": to, "message": message})
	if c.jsonOut {
		printJSON(body)
		return
	}
	var resp struct {
		ClientMsgID string `json:"clientMsgId"`
	}
	_ = json.Unmarshal(body, &resp)
	fmt.Printf("Queued. Client message ID: %s\n", resp.ClientMsgID)
}

func (c *ctl) cmdPost(path string) {
	body := c.post(path, nil)
	if c.jsonOut {
		printJSON(body)
		return
	}
	var resp struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &resp)
	fmt.Println(resp.Message)
}

func (c *ctl) cmdProbe() {
	probe := &http.Client{Timeout: 2 * time.Second}
	resp, err := probe.Get(c.base + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker unreachable: %v\n", err)
		os.Exit(1)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "worker unhealthy: %s\n", resp.Status)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func printJSON(body []byte) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		fmt.Println(string(body))
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
