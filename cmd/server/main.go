// Package main is the entry point for the dmxx server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/dmxx/dmxx-server/internal/auth"
	"github.com/dmxx/dmxx-server/internal/config"
	"github.com/dmxx/dmxx-server/internal/database"
	"github.com/dmxx/dmxx-server/internal/database/models"
	"github.com/dmxx/dmxx-server/internal/database/repositories"
	"github.com/dmxx/dmxx-server/internal/engine"
	"github.com/dmxx/dmxx-server/internal/hub"
	"github.com/dmxx/dmxx-server/internal/ingest"
	"github.com/dmxx/dmxx-server/internal/output"
	"github.com/dmxx/dmxx-server/internal/scene"
	"github.com/dmxx/dmxx-server/internal/services/network"
	"github.com/dmxx/dmxx-server/pkg/sacn"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment variables")
	}

	cfg := config.Load()
	printBanner(log, cfg)

	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer func() { _ = database.Close() }()

	log.Info("running database migrations")
	if err := db.AutoMigrate(
		&models.Universe{},
		&models.Fixture{},
		&models.Patch{},
		&models.Scene{},
		&models.ChannelValueRow{},
		&models.Grid{},
		&models.Group{},
		&models.GroupMember{},
		&models.MappingTable{},
		&models.MappingRule{},
		&models.AccessProfile{},
		&models.Setting{},
		&models.AuditLogEntry{},
	); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}

	snapshotRepo := repositories.NewSnapshotRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	settingRepo := repositories.NewSettingRepository(db)

	snap, err := snapshotRepo.Load(context.Background())
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration snapshot")
	}

	universeIDs := make([]string, 0, len(snap.Universes))
	for _, u := range snap.Universes {
		universeIDs = append(universeIDs, u.ID)
	}

	core := engine.New(log, universeIDs)

	groups := make([]*engine.Group, 0, len(snap.Groups))
	for _, g := range snap.Groups {
		eg := &engine.Group{ID: g.ID, Name: g.Name, Mode: g.Mode, Enabled: g.Enabled}
		for _, m := range snap.GroupMembers[g.ID] {
			member := engine.GroupMember{UniverseID: m.UniverseID, Channel: m.Channel}
			switch m.TargetKind {
			case "nested_group":
				member.Kind = engine.MemberNestedGroup
				if m.MemberGroupID != nil {
					member.NestedGroup = *m.MemberGroupID
				}
			case "global_master":
				member.Kind = engine.MemberGlobalMaster
			case "universe_master":
				member.Kind = engine.MemberUniverseMaster
			default:
				member.Kind = engine.MemberChannel
			}
			eg.Members = append(eg.Members, member)
		}
		groups = append(groups, eg)
	}
	groupEngine, err := engine.NewGroupEngine(groups)
	if err != nil {
		log.WithError(err).Fatal("group configuration contains a cycle")
	}
	core.SetGroupEngine(groupEngine)

	for _, mt := range snap.MappingTables {
		if !mt.Enabled {
			continue
		}
		table := &engine.MappingTable{Enabled: true}
		if mt.UnmappedBehavior == "ignore" {
			table.UnmappedBehavior = engine.UnmappedIgnore
		}
		for _, r := range snap.MappingRules[mt.ID] {
			rule := engine.MappingRule{SrcUniverseID: r.SrcUniverseID, SrcChannel: r.SrcChannel}
			switch r.DstKind {
			case "global_master":
				rule.Dst = engine.MappingDest{Kind: engine.DestGlobalMaster}
			case "universe_master":
				rule.Dst = engine.MappingDest{Kind: engine.DestUniverseMaster, UniverseID: r.DstUniverseID}
			default:
				rule.Dst = engine.MappingDest{Kind: engine.DestChannel, UniverseID: r.DstUniverseID, Channel: r.DstChannel}
			}
			table.Rules = append(table.Rules, rule)
		}
		core.SetMappingTable(table)
		break // at most one mapping table is ever enabled
	}

	var patches []*engine.Patch
	for _, p := range snap.Patches {
		fixtureChannelCount := 0
		for _, f := range snap.Fixtures {
			if f.ID == p.FixtureID {
				fixtureChannelCount = f.ChannelCount
				break
			}
		}
		patches = append(patches, &engine.Patch{
			FixtureID: p.FixtureID, UniverseID: p.UniverseID,
			Address: p.Address, ChannelCount: fixtureChannelCount,
		})
	}
	core.SetPatchTable(engine.NewPatchTable(patches))

	sceneEngine := scene.New(log, core, cfg.SceneUpdateRateHz)
	sceneEngine.Start()
	defer sceneEngine.Stop()

	scenes := buildScenes(snap)

	authSecret := cfg.AuthSecretKey
	if authSecret == "" {
		authSecret = uuid.NewString()
		log.Warn("DMXX_AUTH_SECRET_KEY not set; generated an ephemeral secret for this run")
	}
	issuer, err := auth.NewTokenIssuer(authSecret, cfg.AuthTokenTTL)
	if err != nil {
		log.WithError(err).Fatal("failed to build token issuer")
	}
	whitelist := auth.NewWhitelist(cfg.IPWhitelist)
	gate := auth.NewGate(log, issuer, whitelist, auditRepo, cfg.LoginRateLimitRPS)
	gate.LoadProfiles(snap.AccessProfiles)

	messageHub := hub.New(log, core, sceneEngine, gate, cfg.HubClientQueueSize, cfg.BatchThreshold)
	messageHub.SetScenes(scenes)

	var sacnTx *sacn.Transmitter
	if cfg.SACNEnabled {
		sacnTx, err = sacn.NewTransmitter(uuid.New(), "dmxx")
		if err != nil {
			log.WithError(err).Warn("sacn transmitter failed to start, continuing without sACN output")
		}
	}

	broadcastAddr := cfg.ArtNetBroadcast
	if broadcastAddr == "" {
		if saved, err := settingRepo.FindByKey(context.Background(), "artnet_broadcast_address"); err == nil && saved != nil {
			broadcastAddr = saved.Value
		}
	}
	if broadcastAddr == "" {
		broadcastAddr = network.DefaultBroadcastAddress()
		log.Infof("no configured art-net broadcast address, auto-detected %s", broadcastAddr)
	}

	scheduler, err := output.New(log, core, cfg.OutputRateHz, cfg.OutputRateFloorHz, cfg.BatchThreshold, broadcastAddr, cfg.ArtNetPort, sacnTx)
	if err != nil {
		log.WithError(err).Fatal("failed to start output scheduler")
	}
	scheduler.SetTargets(buildTargets(snap))
	scheduler.SetFrameObserver(messageHub.PublishFrame)
	scheduler.Start()
	defer scheduler.Stop()

	numToID := make(map[int]string, len(snap.Universes))
	sacnUniverses := make([]uint16, 0, len(snap.Universes))
	for _, u := range snap.Universes {
		numToID[u.Number] = u.ID
		sacnUniverses = append(sacnUniverses, uint16(u.Number))
	}
	ingestMgr := ingest.New(log, core, numToID)
	if cfg.ArtNetEnabled {
		if err := ingestMgr.StartArtNet(cfg.ArtNetPort); err != nil {
			log.WithError(err).Warn("failed to start art-net receiver, continuing without art-net input")
		}
	}
	if cfg.SACNEnabled {
		if err := ingestMgr.StartSACN(sacnUniverses); err != nil {
			log.WithError(err).Warn("failed to start sacn receiver, continuing without sacn input")
		}
	}
	defer ingestMgr.Stop()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		Debug:            cfg.IsDevelopment(),
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/health", healthCheckHandler(core, ingestMgr))
	router.Get("/ws", messageHub.ServeHTTP)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("server listening on http://%s", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server shutdown error")
	}
	log.Info("server stopped")
}

func healthCheckHandler(core *engine.Engine, ingestMgr *ingest.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		universeIDs := core.UniverseIDs()
		lastInput := make(map[string]string, len(universeIDs))
		for _, id := range universeIDs {
			if t, ok := ingestMgr.LastSeen(id); ok {
				lastInput[id] = t.UTC().Format(time.RFC3339)
			}
		}
		lastInputJSON, _ := json.Marshal(lastInput)

		fmt.Fprintf(w, `{"status":"ok","timestamp":%q,"version":%q,"universes":%d,"queue_misses":%d,"last_input_frame":%s}`,
			time.Now().UTC().Format(time.RFC3339), Version, len(universeIDs), core.QueueMisses(), lastInputJSON)
	}
}

func buildTargets(snap *repositories.ConfigSnapshot) []output.UniverseTarget {
	targets := make([]output.UniverseTarget, 0, len(snap.Universes))
	for _, u := range snap.Universes {
		targets = append(targets, output.UniverseTarget{
			UniverseID:   u.ID,
			Protocol:     u.Protocol,
			ArtNetNumber: u.Number,
			SACNNumber:   uint16(u.Number),
			Destination:  u.Destination,
		})
	}
	return targets
}

func buildScenes(snap *repositories.ConfigSnapshot) []*scene.Scene {
	scenes := make([]*scene.Scene, 0, len(snap.Scenes))
	for _, s := range snap.Scenes {
		sc := &scene.Scene{
			ID:             s.ID,
			Name:           s.Name,
			Transition:     scene.TransitionType(s.TransitionType),
			DurationMillis: s.TransitionMillis,
			Easing:         scene.EasingType(s.EasingType),
		}
		for _, v := range snap.SceneValues[s.ID] {
			sc.Values = append(sc.Values, scene.ChannelValue{UniverseID: v.UniverseID, Channel: v.Channel, Value: v.Value})
		}
		scenes = append(scenes, sc)
	}
	return scenes
}

func printBanner(log *logrus.Logger, cfg *config.Config) {
	log.Info("============================================")
	log.Infof("  dmxx server %s (%s, %s)", Version, BuildTime, GitCommit)
	log.Infof("  environment: %s", cfg.Env)
	log.Infof("  listening:   %s", cfg.Addr())
	log.Infof("  database:    %s", cfg.DatabaseURL)
	log.Infof("  art-net:     %v", cfg.ArtNetEnabled)
	log.Infof("  sacn:        %v", cfg.SACNEnabled)
	log.Info("============================================")
}
