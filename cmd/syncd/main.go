package main

import (
	"alcyxob/fitness-sync/internal/api"
	"alcyxob/fitness-sync/internal/auth"
	"alcyxob/fitness-sync/internal/config"
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/reachability"
	"alcyxob/fitness-sync/internal/remote"
	"alcyxob/fitness-sync/internal/repository"
	"alcyxob/fitness-sync/internal/repository/memory"
	"alcyxob/fitness-sync/internal/repository/mongo"
	"alcyxob/fitness-sync/internal/service"
	"alcyxob/fitness-sync/internal/storage"
	"alcyxob/fitness-sync/internal/syncer"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// stores is the local persistence of every family plus the pull checkpoints.
type stores struct {
	workouts    repository.Store[*domain.Workout]
	accounts    repository.Store[*domain.Account]
	gymPlans    repository.Store[*domain.GymPlan]
	checkpoints repository.CheckpointStore
	close       func()
}

func openStores(cfg config.StoreConfig) (*stores, error) {
	switch cfg.Driver {
	case "memory":
		log.Println("WARN: Using the in-memory store; local data is lost on exit.")
		return &stores{
			workouts:    memory.NewStore(func() *domain.Workout { return &domain.Workout{} }),
			accounts:    memory.NewStore(func() *domain.Account { return &domain.Account{} }),
			gymPlans:    memory.NewStore(func() *domain.GymPlan { return &domain.GymPlan{} }),
			checkpoints: memory.NewCheckpointStore(),
			close:       func() {},
		}, nil
	case "mongo", "":
	default:
		return nil, errors.New("unknown store driver " + cfg.Driver)
	}

	dbClient, err := mongo.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := dbClient.Database(cfg.Name)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		log.Printf("ERROR: Failed to ensure indexes: %v", err)
	}

	return &stores{
		workouts:    mongo.NewEntityStore(db, domain.FamilyWorkout, func() *domain.Workout { return &domain.Workout{} }),
		accounts:    mongo.NewEntityStore(db, domain.FamilyAccount, func() *domain.Account { return &domain.Account{} }),
		gymPlans:    mongo.NewEntityStore(db, domain.FamilyGymPlan, func() *domain.GymPlan { return &domain.GymPlan{} }),
		checkpoints: mongo.NewCheckpointStore(db),
		close: func() {
			log.Println("Disconnecting MongoDB...")
			if err := mongo.DisconnectDB(dbClient); err != nil {
				log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
			}
		},
	}, nil
}

func openAssetStore(cfg config.S3Config) (storage.AssetStore, error) {
	if cfg.Endpoint == "" && cfg.AccessKeyID == "" {
		log.Println("WARN: No S3 endpoint or credentials configured; workout images stay in memory.")
		return storage.NewMemoryAssetStore(), nil
	}
	return storage.NewS3AssetStore(cfg)
}

func main() {
	log.Println("Starting fitness sync daemon...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Local Store ---
	st, err := openStores(cfg.Store)
	if err != nil {
		log.Fatalf("FATAL: Could not open local store: %v", err)
	}
	defer st.close()

	assets, err := openAssetStore(cfg.S3)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize asset storage: %v", err)
	}

	// --- Session ---
	sessions := auth.NewProvider(cfg.Auth.ExpiryLeeway)
	if cfg.Auth.Token != "" {
		if _, err := sessions.SetToken(cfg.Auth.Token); err != nil {
			log.Printf("WARN: Ignoring configured token: %v", err)
		}
	}

	// --- Sync Engines ---
	bus := events.NewBus()
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout)

	workoutEngine := syncer.NewEngine[*domain.Workout](syncer.WorkoutAdapter{}, st.workouts, st.checkpoints, client, sessions,
		syncer.WithEvents(bus), syncer.WithAssetStore(assets))
	accountEngine := syncer.NewEngine[*domain.Account](syncer.AccountAdapter{}, st.accounts, st.checkpoints, client, sessions,
		syncer.WithEvents(bus))
	gymPlanEngine := syncer.NewEngine[*domain.GymPlan](syncer.GymPlanAdapter{}, st.gymPlans, st.checkpoints, client, sessions,
		syncer.WithEvents(bus))
	if cfg.Sync.SuspendWorkouts {
		log.Println("INFO: Workout uploads are suspended by configuration.")
		workoutEngine.Suspend()
	}

	observer := reachability.NewObserver(reachability.NewHTTPProber(cfg.Remote.BaseURL),
		reachability.WithInterval(cfg.Sync.ReachabilityInterval),
		reachability.WithProbeTimeout(cfg.Sync.ProbeTimeout))

	coordinator, err := syncer.NewCoordinator(observer,
		[]syncer.FamilyEngine{workoutEngine, accountEngine, gymPlanEngine},
		syncer.WithPullOnLaunch(cfg.Sync.PullOnLaunch))
	if err != nil {
		log.Fatalf("FATAL: Could not create sync coordinator: %v", err)
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go observer.Run(rootCtx)

	go func() {
		if err := coordinator.OnLaunch(rootCtx); err != nil {
			log.Printf("WARN: Initial pull incomplete: %v", err)
		}
	}()

	// --- Services ---
	workoutService := service.NewWorkoutService(st.workouts, assets, coordinator, bus)
	accountService := service.NewAccountService(st.accounts, coordinator, bus)
	gymPlanService := service.NewGymPlanService(st.gymPlans, coordinator, bus)

	// --- Control API ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.Dependencies{
		Logger:         log.New(os.Stdout, "[api] ", log.LstdFlags),
		Sessions:       sessions,
		Sync:           coordinator,
		Events:         bus,
		WorkoutService: workoutService,
		AccountService: accountService,
		GymPlanService: gymPlanService,
	})

	// WriteTimeout stays zero so the event stream is not cut off.
	server := &http.Server{
		Addr:        cfg.Control.Address,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	log.Printf("Control API listening on %s", cfg.Control.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	stop()
	bus.Close()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Printf("ERROR: Control API forced to shutdown: %v", err)
	}

	coordinator.Close()
	log.Println("Sync daemon exiting.")
}
