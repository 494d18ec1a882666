package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "users":
		handleUsers(args)
	case "sessions":
		handleSessions(args)
	case "security":
		handleSecurity(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: gatekeeper auth <login|logout|whoami>")
		return
	}

	switch args[0] {
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "whoami":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", args[0])
	}
}

func handleUsers(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: gatekeeper users <list|create|delete>")
		return
	}

	switch args[0] {
	case "list":
		listUsers()
	case "create":
		createUser(args[1:])
	case "delete":
		deleteUser(args[1:])
	default:
		fmt.Printf("unknown users command: %s\n", args[0])
	}
}

func handleSessions(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: gatekeeper sessions <list|revoke>")
		return
	}

	switch args[0] {
	case "list":
		listSessions(args[1:])
	case "revoke":
		revokeSession(args[1:])
	default:
		fmt.Printf("unknown sessions command: %s\n", args[0])
	}
}

func handleSecurity(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: gatekeeper security <stats|history>")
		return
	}

	switch args[0] {
	case "stats":
		securityStats()
	case "history":
		loginHistory(args[1:])
	default:
		fmt.Printf("unknown security command: %s\n", args[0])
	}
}

// Auth commands
func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"username": *username, "password": *password}
	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/login", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("✗ Login failed: %v\n", result["error"])
		return
	}

	token, _ := result["access_token"].(string)
	sessionID, _ := result["session_id"].(string)
	if token == "" {
		fmt.Println("✗ Login failed: no token in response")
		return
	}
	saveState("token", token)
	saveState("session", sessionID)
	fmt.Printf("✓ Logged in as: %s\n", *username)
}

func logoutUser() {
	token := loadState("token")
	if token != "" {
		req, _ := http.NewRequest("POST", getAPIURL()+"/auth/logout", nil)
		addAuthHeaders(req)
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	os.Remove(stateFile("token"))
	os.Remove(stateFile("session"))
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	result, ok := doGet("/auth/me")
	if !ok {
		return
	}
	fmt.Printf("✓ Logged in as: %v (role: %v, status: %v)\n",
		result["username"], result["role"], result["status"])
}

// User commands
func listUsers() {
	result, ok := doGet("/users")
	if !ok {
		return
	}

	users, _ := result["users"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tSTATUS\tEMAIL\tLOGINS")
	for _, item := range users {
		u, _ := item.(map[string]interface{})
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			u["username"], u["role"], u["status"], u["email"], u["login_count"])
	}
	w.Flush()
}

func createUser(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "initial password")
	role := fs.String("role", "viewer", "role")

	fs.Parse(args)

	if *username == "" || *email == "" || *password == "" {
		fmt.Println("Error: username, email, and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{
		"username": *username,
		"email":    *email,
		"password": *password,
		"role":     *role,
	}
	data, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", getAPIURL()+"/users", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeaders(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusCreated {
		fmt.Printf("✗ Create failed: %v\n", result["error"])
		return
	}
	fmt.Printf("✓ User created: %s (%s)\n", *username, *role)
}

func deleteUser(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: gatekeeper users delete <username>")
		return
	}

	req, _ := http.NewRequest("DELETE", getAPIURL()+"/users/"+args[0], nil)
	addAuthHeaders(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		fmt.Printf("✗ Delete failed: %v\n", result["error"])
		return
	}
	fmt.Printf("✓ User deleted: %s\n", args[0])
}

// Session commands
func listSessions(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	username := fs.String("username", "", "inspect another user's sessions (admin only)")
	fs.Parse(args)

	path := "/sessions"
	if *username != "" {
		path += "?username=" + *username
	}
	result, ok := doGet(path)
	if !ok {
		return
	}

	sessions, _ := result["sessions"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tIP\tCREATED\tEXPIRES\tLAST ACTIVITY")
	for _, item := range sessions {
		s, _ := item.(map[string]interface{})
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\n",
			s["id"], s["username"], s["ip_address"], s["created_at"], s["expires_at"], s["last_activity"])
	}
	w.Flush()
}

func revokeSession(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: gatekeeper sessions revoke <session-id>")
		return
	}

	req, _ := http.NewRequest("DELETE", getAPIURL()+"/sessions/"+args[0], nil)
	addAuthHeaders(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		fmt.Printf("✗ Revoke failed: %v\n", result["error"])
		return
	}
	fmt.Printf("✓ Session revoked: %s\n", args[0])
}

// Security commands
func securityStats() {
	result, ok := doGet("/security/stats")
	if !ok {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total users:\t%v\n", result["total_users"])
	fmt.Fprintf(w, "Active sessions:\t%v\n", result["active_sessions"])
	fmt.Fprintf(w, "Blocked addresses:\t%v\n", result["blocked_addresses"])
	fmt.Fprintf(w, "Tracked accounts:\t%v\n", result["tracked_accounts"])
	w.Flush()
}

func loginHistory(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: gatekeeper security history <username>")
		return
	}

	result, ok := doGet("/security/login-history/" + args[0])
	if !ok {
		return
	}

	attempts, _ := result["attempts"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tIP\tRESULT")
	for _, item := range attempts {
		a, _ := item.(map[string]interface{})
		outcome := "failure"
		if ok, _ := a["success"].(bool); ok {
			outcome = "success"
		}
		fmt.Fprintf(w, "%v\t%v\t%v\n", a["timestamp"], a["ip_address"], outcome)
	}
	w.Flush()
}

// Helper functions
func doGet(path string) (map[string]interface{}, bool) {
	req, _ := http.NewRequest("GET", getAPIURL()+path, nil)
	addAuthHeaders(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("✗ Request failed: %v\n", result["error"])
		return nil, false
	}
	return result, true
}

func getAPIURL() string {
	if url := os.Getenv("GATEKEEPER_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func stateFile(name string) string {
	home, _ := os.UserHomeDir()
	return home + "/.gatekeeper/" + name
}

func saveState(name, value string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.gatekeeper", 0700)
	return os.WriteFile(stateFile(name), []byte(value), 0600)
}

func loadState(name string) string {
	data, _ := os.ReadFile(stateFile(name))
	return string(data)
}

func addAuthHeaders(req *http.Request) {
	if token := loadState("token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if session := loadState("session"); session != "" {
		req.Header.Set("X-Session-ID", session)
	}
}

func printUsage() {
	fmt.Print(`Gatekeeper CLI

Usage:
  gatekeeper <command> [options]

Commands:
  auth       Authentication (login, logout, whoami)
  users      User management (list, create, delete) - admin access required
  sessions   Session operations (list, revoke)
  security   Security state (stats, history) - admin access required
  help       Show this help message

Environment Variables:
  GATEKEEPER_API    API endpoint (default: http://localhost:8080/api)

Examples:
  gatekeeper auth login -username admin -password secret
  gatekeeper users create -username dana -email dana@example.com -password secret123 -role engineer
  gatekeeper sessions list
  gatekeeper security stats
`)
}
