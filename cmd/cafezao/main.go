// cmd/cafezao is the terminal client: the headless stand-in for the mobile
// app's screens. Session, theme, and the notification cache live in the
// on-device settings store.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cafezao-da-computacao/cafezao/internal/dispense"
	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/settings"
)

const usage = `cafezao <command>

commands:
  login      -email <email> -password <password>
  logout
  me
  dispense   request a coffee and confirm the machine code
  history    list your recent coffees
  notifications
  theme      [-set <name>] [-follow-system=<bool>]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	store, err := openStore()
	if err != nil {
		fail("open settings store: %v", err)
	}
	defer store.Close()

	api := newAPI(getEnv("CAFEZAO_URL", "http://localhost:8080"), store)

	switch os.Args[1] {
	case "login":
		err = cmdLogin(api, store, os.Args[2:])
	case "logout":
		err = cmdLogout(api, store)
	case "me":
		err = cmdMe(api)
	case "dispense":
		err = cmdDispense(api)
	case "history":
		err = cmdHistory(api)
	case "notifications":
		err = cmdNotifications(api, store)
	case "theme":
		err = cmdTheme(store, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fail("%v", err)
	}
}

func openStore() (settings.Store, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, ".cafezao")
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	return settings.Open(filepath.Join(path, "settings.db"))
}

// ─── Commands ─────────────────────────────────────────────────────────────────

func cmdLogin(api *apiClient, store settings.Store, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	_ = fs.Parse(args)
	if *email == "" || *password == "" {
		return fmt.Errorf("login requires -email and -password")
	}

	var resp model.LoginResponse
	err := api.do(http.MethodPost, "/auth/login",
		model.LoginRequest{Email: *email, Password: *password}, &resp)
	if err != nil {
		return err
	}

	err = store.SaveSession(settings.Session{
		Token:              resp.Token,
		UserID:             resp.UserID,
		Name:               resp.Name,
		Role:               resp.Role,
		SubscriptionStatus: resp.SubscriptionStatus,
	})
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", resp.Name, resp.Role)
	return nil
}

func cmdLogout(api *apiClient, store settings.Store) error {
	_ = api.do(http.MethodPost, "/auth/logout", nil, nil)
	if err := store.ClearSession(); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func cmdMe(api *apiClient) error {
	var user model.User
	if err := api.do(http.MethodGet, "/me", nil, &user); err != nil {
		return err
	}
	fmt.Printf("%s <%s>\n", user.Name, user.Email)
	fmt.Printf("subscription: %s", user.SubscriptionStatus)
	if user.SubscriptionEndDate != nil {
		fmt.Printf(" (until %s)", user.SubscriptionEndDate.Format("2006-01-02"))
	}
	fmt.Printf("\ncoffees today: %d, total: %d\n", user.CoffeesToday, user.TotalCoffees)
	return nil
}

func cmdDispense(api *apiClient) error {
	var snap dispense.Snapshot
	if err := api.do(http.MethodPost, "/dispense", nil, &snap); err != nil {
		return err
	}
	fmt.Printf("confirmation code: %s (expires in %ds)\n", snap.Code, snap.RemainingSeconds)
	fmt.Println("type the code shown by the machine, or press enter to cancel")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("code: ")
	code, _ := reader.ReadString('\n')
	code = strings.TrimSpace(code)
	if code == "" {
		if err := api.do(http.MethodPost, "/dispense/cancel", nil, nil); err != nil {
			return err
		}
		fmt.Println("cancelled")
		return nil
	}

	fmt.Print("quantity (1/4 or 2/4): ")
	quantity, _ := reader.ReadString('\n')
	quantity = strings.TrimSpace(quantity)

	var event model.CoffeeEvent
	err := api.do(http.MethodPost, "/dispense/confirm",
		model.ConfirmRequest{Code: code, Quantity: model.Quantity(quantity)}, &event)
	if err != nil {
		return err
	}
	fmt.Printf("enjoy your %s coffee! (%s)\n", event.Quantity, event.CreatedAt.Local().Format(time.Kitchen))
	return nil
}

func cmdHistory(api *apiClient) error {
	var events []model.CoffeeEvent
	if err := api.do(http.MethodGet, "/coffees", nil, &events); err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no coffees yet")
		return nil
	}
	for _, e := range events {
		fmt.Printf("%s  %s  %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Quantity, e.Status)
	}
	return nil
}

func cmdNotifications(api *apiClient, store settings.Store) error {
	var notifications []model.Notification
	if err := api.do(http.MethodGet, "/notifications", nil, &notifications); err != nil {
		// Offline: fall back to the cached list.
		cached, cacheErr := store.CachedNotifications()
		if cacheErr != nil || cached == nil {
			return err
		}
		fmt.Println("(offline, showing cached notifications)")
		notifications = cached
	} else {
		_ = store.CacheNotifications(notifications)
	}

	if len(notifications) == 0 {
		fmt.Println("no notifications")
		return nil
	}
	for _, n := range notifications {
		scope := ""
		if n.Global {
			scope = " [all]"
		}
		fmt.Printf("%s%s %s: %s\n", n.CreatedAt.Local().Format("01-02 15:04"), scope, n.Title, n.Body)
	}
	return nil
}

func cmdTheme(store settings.Store, args []string) error {
	fs := flag.NewFlagSet("theme", flag.ExitOnError)
	set := fs.String("set", "", "theme name to select")
	follow := fs.Bool("follow-system", false, "track the system theme")
	_ = fs.Parse(args)

	theme, err := store.Theme()
	if err != nil {
		return err
	}
	if *set == "" && !*follow {
		fmt.Printf("theme: %s (follow system: %v)\n", theme.Selected, theme.FollowSystem)
		return nil
	}
	if *set != "" {
		theme.Selected = *set
		theme.FollowSystem = false
	}
	if *follow {
		theme.FollowSystem = true
		theme.Selected = "system"
	}
	if err := store.SaveTheme(theme); err != nil {
		return err
	}
	fmt.Printf("theme set to %s (follow system: %v)\n", theme.Selected, theme.FollowSystem)
	return nil
}

// ─── HTTP plumbing ────────────────────────────────────────────────────────────

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPI(base string, store settings.Store) *apiClient {
	c := &apiClient{base: base, http: &http.Client{Timeout: 15 * time.Second}}
	if sess, err := store.Session(); err == nil {
		c.token = sess.Token
	}
	return c
}

func (c *apiClient) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed (is the server running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope model.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != "" {
			return fmt.Errorf("%s", envelope.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
