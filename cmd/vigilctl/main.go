// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Command vigilctl is the thin terminal client: it logs in, drives scans and
// query edits over the JSON API, and prints dashboards.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

func main() {
	server := flag.String("server", "http://127.0.0.1:8080", "vigil server base URL")
	flag.Parse()

	c := &client{
		base:  strings.TrimSuffix(*server, "/"),
		httpc: &http.Client{Timeout: 60 * time.Second},
		in:    bufio.NewReader(os.Stdin),
	}
	c.run()
}

type client struct {
	base     string
	httpc    *http.Client
	in       *bufio.Reader
	username string
	token    string
}

// run is the main menu loop. EOF or an empty interrupt ends the session
// cleanly with exit code 0.
func (c *client) run() {
	if !c.login() {
		return
	}
	for {
		fmt.Println()
		fmt.Println("[1] Scan  [2] Add Query  [3] Edit Query  [4] Reload Cookies  [5] Save  [6] Login  [q] Quit")
		choice, ok := c.prompt("> ")
		if !ok {
			fmt.Println()
			return
		}
		switch strings.TrimSpace(choice) {
		case "1":
			c.scan()
		case "2":
			c.addQuery()
		case "3":
			c.editQuery()
		case "4":
			c.reloadCookies()
		case "5":
			c.save()
		case "6":
			c.login()
		case "q", "Q", "":
			return
		default:
			fmt.Println("unknown choice")
		}
	}
}

// prompt reads one line; ok=false on EOF.
func (c *client) prompt(label string) (string, bool) {
	fmt.Print(label)
	line, err := c.in.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), true
		}
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

func (c *client) login() bool {
	username, ok := c.prompt("username: ")
	if !ok {
		return false
	}
	password, ok := c.prompt("password: ")
	if !ok {
		return false
	}

	var resp struct {
		Username    string `json:"username"`
		Token       string `json:"token"`
		AuthSuccess bool   `json:"auth_success"`
	}
	if err := c.post("/auth", map[string]any{"username": username, "password": password}, &resp); err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		return false
	}
	if !resp.AuthSuccess {
		fmt.Println("Access Denied")
		return false
	}
	c.username = resp.Username
	c.token = resp.Token
	fmt.Println("logged in as", c.username)
	return true
}

func (c *client) scan() {
	var snapshot map[string]queryState
	if err := c.post("/get_dashboard", c.authed(nil), &snapshot); err != nil {
		fmt.Fprintln(os.Stderr, "scan failed:", err)
		return
	}
	printDashboard(snapshot)
	for _, q := range snapshot {
		if q.Found && q.IsNew {
			fmt.Printf("match: %s -> %s\n", q.Alias, q.TargetURL)
		}
	}
}

// queryFields prompts for the fields shared by add and edit. Blank answers
// are omitted so edits only touch what the user typed.
func (c *client) queryFields() (map[string]any, bool) {
	fields := map[string]any{}
	for _, f := range []struct{ key, label string }{
		{"url", "url"},
		{"alias", "alias (blank = url)"},
		{"sequence", `sequence (regexes joined by \&)`},
		{"mode", "mode (exists / not-exists)"},
		{"interval", "interval (minutes, or 2h / 1d)"},
		{"cooldown", "cooldown (blank = interval)"},
		{"randomize", "randomize percent (0-100)"},
		{"eta", "eta (e.g. monday-friday,9-17)"},
		{"cycles_limit", "cycles limit (0 = unlimited)"},
		{"is_recurring", "recurring (true/false)"},
	} {
		val, ok := c.prompt(f.label + ": ")
		if !ok {
			return nil, false
		}
		if val = strings.TrimSpace(val); val != "" {
			fields[f.key] = val
		}
	}
	return fields, true
}

func (c *client) addQuery() {
	fields, ok := c.queryFields()
	if !ok {
		return
	}
	c.simple("/add_query", c.authed(fields))
}

func (c *client) editQuery() {
	uid, ok := c.prompt("uid: ")
	if !ok || strings.TrimSpace(uid) == "" {
		return
	}
	fields, ok := c.queryFields()
	if !ok {
		return
	}
	fields["uid"] = strings.TrimSpace(uid)
	c.simple("/edit_query", c.authed(fields))
}

// reloadCookies reads a cookies JSON file exported by the harvester:
// {"cookies_filename": {"name": "value"}}.
func (c *client) reloadCookies() {
	path, ok := c.prompt("cookies file: ")
	if !ok || strings.TrimSpace(path) == "" {
		return
	}
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read cookies:", err)
		return
	}
	var jars map[string]map[string]string
	if err := json.Unmarshal(data, &jars); err != nil {
		fmt.Fprintln(os.Stderr, "parse cookies:", err)
		return
	}
	c.simple("/refresh_data", c.authed(map[string]any{"cookies": jars}))
}

func (c *client) save() {
	c.simple("/save", c.authed(nil))
}

// simple posts and prints the {success, msg} reply.
func (c *client) simple(path string, body map[string]any) {
	var res struct {
		Success bool   `json:"success"`
		Msg     string `json:"msg"`
	}
	if err := c.post(path, body, &res); err != nil {
		fmt.Fprintln(os.Stderr, "request failed:", err)
		return
	}
	fmt.Println(res.Msg)
}

func (c *client) authed(extra map[string]any) map[string]any {
	body := map[string]any{"username": c.username, "token": c.token}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func (c *client) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Post(c.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

type queryState struct {
	UID       string `json:"uid"`
	Alias     string `json:"alias"`
	TargetURL string `json:"target_url"`
	Interval  int    `json:"interval"`
	Cycles    int    `json:"cycles"`
	Found     bool   `json:"found"`
	Status    int    `json:"status"`
	IsNew     bool   `json:"is_new"`
	LastRun   string `json:"last_run"`
}

func printDashboard(snapshot map[string]queryState) {
	rows := make([]queryState, 0, len(snapshot))
	for _, q := range snapshot {
		rows = append(rows, q)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Alias < rows[j].Alias })

	statusNames := map[int]string{-1: "never ran", 0: "ok", 1: "access denied", 2: "connection lost"}
	fmt.Printf("%-20s %-10s %-8s %-6s %-15s %s\n", "ALIAS", "FOUND", "CYCLES", "INT", "STATUS", "LAST RUN")
	for _, q := range rows {
		fmt.Printf("%-20s %-10v %-8d %-6d %-15s %s\n",
			q.Alias, q.Found, q.Cycles, q.Interval, statusNames[q.Status], q.LastRun)
	}
}
