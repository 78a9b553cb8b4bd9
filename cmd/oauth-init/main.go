// Command oauth-init runs the installed-app OAuth flow once and saves the
// resulting token for ledger-worker (GOOGLE_OAUTH_TOKEN_FILE).
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"risparmi/internal/cli"
	gsheet "risparmi/internal/sheets/google"
)

const authTimeout = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("oauth_init")

	clientJSON, err := readClient()
	if err != nil {
		cli.Fatal(logger, "Failed to read OAuth client", err)
	}
	conf, err := gsheet.OAuthConfig(clientJSON)
	if err != nil {
		cli.Fatal(logger, "Invalid OAuth client", err)
	}

	port := envOr("OAUTH_REDIRECT_PORT", "8085")
	// the redirect URI must be registered on the OAuth client
	conf.RedirectURL = "http://localhost:" + port + "/callback"

	state, err := newState()
	if err != nil {
		cli.Fatal(logger, "Failed to generate state", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	codes := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", callbackHandler(state, codes))
	srv := &http.Server{Addr: cli.Addr(port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Callback server failed", "error", err)
			cancel()
		}
	}()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", conf.AuthCodeURL(state, oauth2.AccessTypeOffline))

	var code string
	select {
	case code = <-codes:
	case <-ctx.Done():
		cli.Fatal(logger, "Authorization not completed", ctx.Err())
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		cli.Fatal(logger, "Token exchange failed", err)
	}

	out := envOr("GOOGLE_OAUTH_TOKEN_FILE", "token.json")
	if err := saveToken(out, tok); err != nil {
		cli.Fatal(logger, "Failed to save token", err, "path", out)
	}
	logger.Info("Token saved", "path", out, "has_refresh_token", tok.RefreshToken != "")
}

func callbackHandler(state string, codes chan<- string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codes <- code:
		default:
		}
	}
}

func readClient() ([]byte, error) {
	if v := os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"); v != "" {
		return []byte(v), nil
	}
	if f := os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"); f != "" {
		return os.ReadFile(f)
	}
	return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
