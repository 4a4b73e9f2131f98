package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/Indrakargaurav/codeweave/handlers/auth"
	"github.com/Indrakargaurav/codeweave/handlers/execute"
	"github.com/Indrakargaurav/codeweave/handlers/rooms"
	authMiddleware "github.com/Indrakargaurav/codeweave/middleware"
	"github.com/Indrakargaurav/codeweave/room"
	"github.com/Indrakargaurav/codeweave/runner"
	"github.com/Indrakargaurav/codeweave/socket"
	"github.com/Indrakargaurav/codeweave/stores"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func setupRouter(engine *engineDeps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)

			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", rooms.HandleCreate(engine.roomStore))
				r.Get("/", rooms.HandleList(engine.roomStore))
				r.Route("/{roomID}", func(r chi.Router) {
					r.Get("/", rooms.HandleInfo(engine.roomStore))
					r.Delete("/", rooms.HandleDelete(engine.roomStore, engine.snapshots))
					r.Get("/files", rooms.HandleGetFiles(engine.roomStore, engine.snapshots))
					r.Post("/files", rooms.HandleSaveFiles(engine.roomStore, engine.snapshots))
					r.Post("/shutdown", rooms.HandleShutdown(engine.lifecycle))
					r.Post("/touch", rooms.HandleTouch(engine.roomStore))
					r.Get("/export", rooms.HandleExport(engine.roomStore, engine.snapshots))
					r.Post("/join-code", rooms.HandleIssueJoinCode(engine.broker))
				})
				r.Get("/join/{code}", rooms.HandleResolveJoinCode(engine.broker))
			})

			r.Route("/execute", func(r chi.Router) {
				r.Post("/", execute.HandleExecute(engine.runner))
				r.Get("/languages", execute.HandleLanguages(engine.runner))
			})
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", auth.HandleLogin)
		r.Get("/callback", auth.HandleCallback)
	})

	return r
}

type engineDeps struct {
	roomStore core.RoomStore
	snapshots core.SnapshotStore
	lifecycle *room.Lifecycle
	broker    *room.Broker
	runner    core.Runner
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logrus.WithField("key", key).Warn("invalid duration in environment, using default")
	}
	return fallback
}

func waitForShutdown(hub *socket.Hub, srv *http.Server) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-signalC

	logrus.Info("Shutting down...")
	hub.Server().Close(nil)
	srv.Close()
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":5000", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.InitAuth()

	roomStore := stores.GetRoomStore()
	snapshots := stores.GetSnapshotStore()
	codes := stores.GetTTLStore()

	hub := socket.NewHub()
	registry := room.NewRegistry(hub)
	lifecycle := room.NewLifecycle(registry, hub, roomStore, snapshots, room.LifecycleConfig{
		KickGrace:    durationEnv("KICK_GRACE", 100*time.Millisecond),
		DrainTimeout: durationEnv("DRAIN_TIMEOUT", 5*time.Second),
	})
	broker := room.NewBroker(roomStore, codes, durationEnv("JOIN_CODE_TTL", 10*time.Minute))
	hub.Bind(registry, lifecycle)

	r := setupRouter(&engineDeps{
		roomStore: roomStore,
		snapshots: snapshots,
		lifecycle: lifecycle,
		broker:    broker,
		runner:    runner.NewLambdaRunner(),
	})
	r.Mount("/socket.io/", hub.Server().ServeHandler(nil))

	srv := &http.Server{Addr: *listenAddress, Handler: r}

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(hub, srv)
}
