package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/attendance"
	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/client"
	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/controllers"
	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/geolocation"
	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/identity"
	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/scanner"
	config "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Config"
	container "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Container"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewAgentContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	logger.Info("Starting attendance agent")

	cfg := ctr.GetConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ctr.GetIdentityStore()
	if err != nil {
		logger.FatalWithError(err, "Failed to open identity store")
	}
	ids := identity.NewManager(store, logger)

	apiClient := client.NewAPIClient(client.Options{
		BaseURL:        cfg.API.BaseURL,
		LoginPath:      cfg.API.LoginPath,
		AttendancePath: cfg.API.AttendancePath,
		UserAgent:      cfg.API.UserAgent,
		Timeout:        cfg.API.Timeout,
		Logger:         logger,
	})
	logger.Logger.Info().
		Str("login_url", cfg.LoginURL()).
		Str("attendance_url", cfg.AttendanceURL()).
		Msg("Attendance server endpoints")

	// Device identity bootstrap. A failed login leaves the session empty, the agent keeps running.
	session := identity.NewSessionView()
	bootstrap := identity.NewBootstrap(ids, apiClient, session, logger)
	bootstrap.SetLoginTimeout(cfg.API.Timeout)
	if _, err := bootstrap.Run(ctx); err != nil {
		logger.WithError(err).Warn("Bootstrap did not complete")
	}

	notifiers := attendance.MultiNotifier{attendance.NewConsoleNotifier(os.Stdout)}
	var mqttConnected func() bool
	if cfg.MQTT.Enabled {
		mqttClient, err := ctr.GetMQTTClient()
		if err != nil {
			logger.FatalWithError(err, "Failed to connect to MQTT broker")
		}
		mqttConnected = ctr.MQTTConnected
		notifiers = append(notifiers, attendance.NewMQTTNotifier(mqttClient, cfg.MQTT.NoticeTopic, ids.DeviceID, logger))
	}

	locator, err := newLocator(ctr, cfg)
	if err != nil {
		logger.FatalWithError(err, "Failed to start geolocation provider")
	}

	flow := attendance.NewFlow(attendance.Config{
		GeoTimeout: cfg.Geolocation.Timeout,
		APITimeout: cfg.API.Timeout,
	}, apiClient, locator, ids, notifiers, logger)

	var wg sync.WaitGroup

	if cfg.Scanner.Enabled {
		source, err := scanner.NewSpoolDirSource(cfg.Scanner.SpoolDir)
		if err != nil {
			logger.FatalWithError(err, "Failed to open frame spool")
		}
		sc := scanner.New(scanner.Config{
			FPS:   cfg.Scanner.FPS,
			QRBox: scanner.QRBox{Width: cfg.Scanner.QRBoxWidth, Height: cfg.Scanner.QRBoxHeight},
		}, source, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sc.Render(ctx, func(ctx context.Context, text string) {
				// errors are already logged by the flow
				_, _ = flow.HandleDecoded(ctx, text)
			})
			if err != nil {
				logger.ErrorWithError(err, "Scanner stopped")
			}
		}()
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		srv = newServer(cfg, controllers.NewAgentController(flow, ids, session, apiClient, store, mqttConnected, logger))
		go func() {
			logger.Info("Control API starting on port " + cfg.Server.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.FatalWithError(err, "Failed to start control API")
			}
		}()
	}

	logger.Info("Attendance agent running... press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("Shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithError(err, "Control API forced to shutdown")
		}
		cancel()
	}

	wg.Wait()
}

func newLocator(ctr *container.AgentContainer, cfg *config.AgentConfig) (geolocation.Locator, error) {
	if cfg.Geolocation.Provider != config.GeoProviderMQTT {
		return geolocation.NewStaticLocator(cfg.Geolocation.Latitude, cfg.Geolocation.Longitude, cfg.Geolocation.Accuracy), nil
	}

	mqttClient, err := ctr.GetMQTTClient()
	if err != nil {
		return nil, err
	}
	locator := geolocation.NewMQTTLocator(mqttClient, cfg.Geolocation.MQTTTopic, ctr.GetLogger())
	if err := locator.Start(); err != nil {
		return nil, err
	}
	ctr.OnMQTTReconnect(func() {
		if err := locator.Start(); err != nil {
			ctr.GetLogger().ErrorWithError(err, "Failed to restore GPS subscription")
		}
	})
	ctr.AddCleanupFunc(func() error {
		locator.Stop()
		return nil
	})
	return locator, nil
}

func newServer(cfg *config.AgentConfig, agentController *controllers.AgentController) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	if len(cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     cfg.CORS.AllowedMethods,
			AllowHeaders:     cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
		}))
	}

	agentController.RegisterRoutes(router)

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
