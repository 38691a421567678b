package dummy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"fxload/internal/scenario"
)

const DefaultPrefix = "/api/v1"

type ServerConfig struct {
	Port int
	// Prefix is mounted in front of every route
	Prefix string
	// Latency is added to every response, plus up to Jitter at random
	Latency time.Duration
	Jitter  time.Duration
	// ErrorRate is the fraction of requests answered with 500
	ErrorRate float64
}

// store is the in-memory state of the fake subscription service.
type store struct {
	mu     sync.Mutex
	users  map[string]string
	tokens map[string]string
	subs   map[string][]scenario.Subscription
}

func newStore() *store {
	return &store{
		users:  make(map[string]string),
		tokens: make(map[string]string),
		subs:   make(map[string][]scenario.Subscription),
	}
}

type server struct {
	cfg   ServerConfig
	store *store
}

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// NewHandler returns the routes of the subscription API contract: signup,
// login, create subscription and list the caller's subscriptions.
func NewHandler(cfg ServerConfig) http.Handler {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	s := &server{cfg: cfg, store: newStore()}

	router := mux.NewRouter()
	router.Use(s.chaos)
	// full paths on the root router so a wrong method answers 405
	router.HandleFunc(cfg.Prefix+"/auth/signup", s.signup).Methods("POST")
	router.HandleFunc(cfg.Prefix+"/auth/login", s.login).Methods("POST")
	router.HandleFunc(cfg.Prefix+"/subscriptions", s.authorized(s.createSubscription)).Methods("POST")
	router.HandleFunc(cfg.Prefix+"/subscriptions/my", s.authorized(s.mySubscriptions)).Methods("GET")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods("GET")
	return router
}

// chaos applies the configured latency and error rate.
func (s *server) chaos(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delay := s.cfg.Latency
		if s.cfg.Jitter > 0 {
			delay += rand.N(s.cfg.Jitter)
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if s.cfg.ErrorRate > 0 && rand.Float64() < s.cfg.ErrorRate {
			writeJSON(w, http.StatusInternalServerError, errorBody{http.StatusInternalServerError, "Internal Server Error"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) signup(w http.ResponseWriter, r *http.Request) {
	var req scenario.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" || req.Mobile == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{http.StatusBadRequest, "email, password and mobile are required"})
		return
	}

	s.store.mu.Lock()
	_, exists := s.store.users[req.Email]
	if !exists {
		s.store.users[req.Email] = req.Password
	}
	s.store.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusConflict, errorBody{http.StatusConflict, "Email is already registered"})
		return
	}

	msg := "User registered successfully"
	if req.Admin {
		msg = "Admin registered successfully"
	}
	writeJSON(w, http.StatusCreated, scenario.SignupResponse{UserID: uuid.NewString(), Message: msg})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req scenario.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{http.StatusBadRequest, "invalid request body"})
		return
	}

	s.store.mu.Lock()
	password, ok := s.store.users[req.Username]
	ok = ok && password == req.Password
	token := ""
	if ok {
		token = uuid.NewString()
		s.store.tokens[token] = req.Username
	}
	s.store.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{http.StatusUnauthorized, "Invalid username/password"})
		return
	}
	writeJSON(w, http.StatusOK, scenario.LoginResponse{Token: token, Message: "Login successful"})
}

type userKey struct{}

// authorized resolves the bearer token to a user or answers 401.
func (s *server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.store.mu.Lock()
		user, ok := s.store.tokens[token]
		s.store.mu.Unlock()
		if !found || !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{http.StatusUnauthorized, "Unauthorized"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

func (s *server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req scenario.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurrencyPair == "" || req.Direction == "" || len(req.NotificationChannels) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{http.StatusBadRequest, "currencyPair, threshold, direction and notificationChannels are required"})
		return
	}

	now := time.Now().UTC()
	sub := scenario.Subscription{
		ID:                    uuid.NewString(),
		CurrencyPair:          req.CurrencyPair,
		Threshold:             req.Threshold,
		Direction:             req.Direction,
		NotificationsChannels: req.NotificationChannels,
		Status:                "ACTIVE",
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	user := r.Context().Value(userKey{}).(string)
	s.store.mu.Lock()
	s.store.subs[user] = append(s.store.subs[user], sub)
	s.store.mu.Unlock()

	writeJSON(w, http.StatusCreated, scenario.CreateSubscriptionResponse{
		SubscriptionID: sub.ID,
		Message:        "Subscription created successfully",
		Subscription:   sub,
	})
}

func (s *server) mySubscriptions(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(userKey{}).(string)
	s.store.mu.Lock()
	subs := append([]scenario.Subscription{}, s.store.subs[user]...)
	s.store.mu.Unlock()
	writeJSON(w, http.StatusOK, scenario.SubscriptionsResponse{Subscriptions: subs, TotalCount: len(subs)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Serve listens on cfg.Port until ctx is done.
func Serve(ctx context.Context, cfg ServerConfig, log zerolog.Logger) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: NewHandler(cfg), ReadHeaderTimeout: 10 * time.Second}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	log.Info().
		Str("addr", lis.Addr().String()).
		Str("base_url", fmt.Sprintf("http://localhost:%d%s", lis.Addr().(*net.TCPAddr).Port, prefix)).
		Dur("latency", cfg.Latency).
		Float64("error_rate", cfg.ErrorRate).
		Msg("Dummy subscription service running")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
