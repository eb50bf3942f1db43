package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/QueueDeck/QueueDeck/internal/config"
	"github.com/QueueDeck/QueueDeck/internal/dashboard"
	"github.com/QueueDeck/QueueDeck/internal/feed"
	"github.com/QueueDeck/QueueDeck/internal/identity"
	"github.com/QueueDeck/QueueDeck/internal/notify"
	"github.com/QueueDeck/QueueDeck/internal/queue"
	"github.com/QueueDeck/QueueDeck/internal/relay"
	"github.com/QueueDeck/QueueDeck/internal/secure"
	"github.com/QueueDeck/QueueDeck/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start one agent's dispatch dashboard gateway",
	Run:   runServe,
}

// runServe hosts a single dashboard instance: one logical agent session per
// process. Multiple agents run multiple processes, coordinating through the
// shared store and the feed relay.
func runServe(cmd *cobra.Command, args []string) {
	printHeader("QueueDeck Gateway")
	fmt.Println("Starting QueueDeck...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	f := feed.New()
	st, err := store.Open(cfg.Store.Path, f)
	if err != nil {
		fmt.Printf("Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	if cfg.Relay.Enabled {
		rl := relay.New(cfg.Relay.Brokers, cfg.Relay.Topic, cfg.Relay.ConsumerGroup, f)
		rl.Start(ctx)
		defer rl.Stop()
		fmt.Printf("Feed relay: %s (topic %s)\n", cfg.Relay.Brokers, cfg.Relay.Topic)
	}
	if cfg.Slack.Enabled {
		sn := notify.NewSlackNotifier(cfg.Slack.Token, cfg.Slack.Channel)
		sn.Start(f)
		defer sn.Stop()
		fmt.Println("Slack alerts: enabled")
	}

	engine := queue.NewEngine(st, cfg.Dispatch.MaxActiveChats)
	auth := identity.NewStaticProvider(cfg.Auth.Credentials)
	dash := dashboard.New(st, f, engine, auth)
	defer dash.Logout()

	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: apiMux(dash),
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
		cancel()
	}()

	fmt.Printf("Dashboard API listening on http://%s\n", cfg.Server.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}
}

// apiMux exposes the dashboard's read models and action entry points to the
// view layer.
func apiMux(dash *dashboard.Dashboard) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := dash.Login(req.Email, req.Password); err != nil {
			writeError(w, err)
			return
		}
		emp, err := dash.Employee()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, emp)
	})

	mux.HandleFunc("POST /api/logout", func(w http.ResponseWriter, r *http.Request) {
		if err := dash.Logout(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	mux.HandleFunc("GET /api/me", func(w http.ResponseWriter, r *http.Request) {
		emp, err := dash.Employee()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, emp)
	})

	mux.HandleFunc("GET /api/queues", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, dash.Queues())
	})

	mux.HandleFunc("POST /api/claim", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ConversationID string `json:"conversation_id"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := dash.ClaimConversation(req.ConversationID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	mux.HandleFunc("POST /api/open", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ConversationID string `json:"conversation_id"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := dash.OpenConversation(req.ConversationID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	mux.HandleFunc("GET /api/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, dash.Messages())
	})

	mux.HandleFunc("POST /api/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := dash.SendMessage(req.Text); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	mux.HandleFunc("POST /api/close", func(w http.ResponseWriter, r *http.Request) {
		if err := dash.CloseConversation(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	mux.HandleFunc("GET /api/secure", func(w http.ResponseWriter, r *http.Request) {
		rec, err := dash.LoadSecureRecord()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, rec)
	})

	mux.HandleFunc("POST /api/secure", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			secure.Fields
			Deadline string `json:"deadline,omitempty"`
		}
		if !decode(w, r, &req) {
			return
		}
		var deadline *time.Time
		if req.Deadline != "" {
			t, err := time.Parse("2006-01-02", req.Deadline)
			if err != nil {
				http.Error(w, "invalid deadline, want YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			deadline = &t
		}
		err := dash.SaveSecureRecord(req.Fields, deadline)
		var partial *secure.PartialSaveError
		if errors.As(err, &partial) {
			// the record landed, so report success with a caveat
			writeJSON(w, map[string]any{"ok": true, "warning": partial.Error()})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	mux.HandleFunc("GET /api/ribbon", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, dash.Ribbon())
	})

	mux.HandleFunc("GET /api/missed", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, dash.MissedCalls())
	})

	mux.HandleFunc("POST /api/missed/ack", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CallID string `json:"call_id"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := dash.AcknowledgeMissedCall(req.CallID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	mux.HandleFunc("GET /api/search", func(w http.ResponseWriter, r *http.Request) {
		conv, err := dash.SearchByDisplayCode(r.URL.Query().Get("code"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, conv)
	})

	return mux
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError maps the dispatch error taxonomy onto HTTP statuses at the
// action boundary.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrAuthenticationFailed):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, identity.ErrAuthorizationDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, dashboard.ErrNotSignedIn):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, queue.ErrCapacityExceeded):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, queue.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
