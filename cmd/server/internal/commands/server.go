package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/wardcast/internal/admin"
	"github.com/wolfeidau/wardcast/internal/audit"
	"github.com/wolfeidau/wardcast/internal/broker"
	"github.com/wolfeidau/wardcast/internal/logger"
	"github.com/wolfeidau/wardcast/internal/models"
	"github.com/wolfeidau/wardcast/internal/store"
	memorystore "github.com/wolfeidau/wardcast/internal/store/memory"
	redisstore "github.com/wolfeidau/wardcast/internal/store/redis"
)

type ServerCmd struct {
	// Broker configuration
	Listen      string `help:"broker TCP listen address" default:":9595" env:"WARDCAST_LISTEN"`
	AdminListen string `help:"admin/monitoring HTTP listen address (empty disables)" default:"" env:"WARDCAST_ADMIN_LISTEN"`

	// Expiry policy
	SessionTimeout time.Duration `help:"idle timeout for non-persistent sessions" default:"30m" env:"WARDCAST_SESSION_TIMEOUT"`
	SweepInterval  time.Duration `help:"period of the expired session sweep" default:"5m" env:"WARDCAST_SWEEP_INTERVAL"`

	// Store configuration
	StoreType string     `help:"store type (memory or redis)" default:"memory" env:"WARDCAST_STORE_TYPE" enum:"memory,redis"`
	Redis     RedisFlags `embed:"" prefix:"redis-"`

	// Optional YAML config file; file values override flags when set.
	Config string `help:"path to YAML config file" default:"" env:"WARDCAST_CONFIG"`

	// Seed sessions stand in for the external login flow so the broker can
	// run end to end. Format: username=ROLE:Full Name (repeatable).
	Seed map[string]string `help:"seed sessions, username=ROLE:Full Name" env:"WARDCAST_SEED"`
}

type RedisFlags struct {
	Addr     string `help:"Redis address" default:"127.0.0.1:6379" env:"WARDCAST_REDIS_ADDR"`
	Password string `help:"Redis password" default:"" env:"WARDCAST_REDIS_PASSWORD"`
	DB       int    `help:"Redis database number" default:"0" env:"WARDCAST_REDIS_DB"`
}

func (r *RedisFlags) Validate() error {
	if r.Addr == "" {
		return errors.New("Redis address is required (--redis-addr or WARDCAST_REDIS_ADDR)")
	}
	return nil
}

// fileConfig mirrors the flag set for YAML configuration files.
type fileConfig struct {
	Listen         string `yaml:"listen"`
	AdminListen    string `yaml:"admin_listen"`
	SessionTimeout string `yaml:"session_timeout"`
	SweepInterval  string `yaml:"sweep_interval"`
	StoreType      string `yaml:"store_type"`
	Redis          struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

func (c *ServerCmd) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if fc.Listen != "" {
		c.Listen = fc.Listen
	}
	if fc.AdminListen != "" {
		c.AdminListen = fc.AdminListen
	}
	if fc.SessionTimeout != "" {
		d, err := time.ParseDuration(fc.SessionTimeout)
		if err != nil {
			return fmt.Errorf("invalid session_timeout in config file: %w", err)
		}
		c.SessionTimeout = d
	}
	if fc.SweepInterval != "" {
		d, err := time.ParseDuration(fc.SweepInterval)
		if err != nil {
			return fmt.Errorf("invalid sweep_interval in config file: %w", err)
		}
		c.SweepInterval = d
	}
	if fc.StoreType != "" {
		c.StoreType = fc.StoreType
	}
	if fc.Redis.Addr != "" {
		c.Redis.Addr = fc.Redis.Addr
	}
	if fc.Redis.Password != "" {
		c.Redis.Password = fc.Redis.Password
	}
	if fc.Redis.DB != 0 {
		c.Redis.DB = fc.Redis.DB
	}

	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting broker")

	if c.Config != "" {
		if err := c.applyFile(c.Config); err != nil {
			return err
		}
	}

	sink := audit.NewLogSink(log)

	var sessions store.SessionStore
	switch c.StoreType {
	case "redis":
		if err := c.Redis.Validate(); err != nil {
			return err
		}

		client := goredis.NewClient(&goredis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		sessions = redisstore.NewSessionStore(client, redisstore.Config{
			SessionTimeout: c.SessionTimeout,
		}, sink, log)

		log.Info().Str("addr", c.Redis.Addr).Msg("using Redis session store")

	default:
		memStore := memorystore.NewSessionStore(memorystore.Config{
			SessionTimeout: c.SessionTimeout,
			SweepInterval:  c.SweepInterval,
		}, sink, log)
		go memStore.StartSweeper(ctx)
		sessions = memStore

		log.Info().Msg("using in-memory session store")
	}

	if err := c.seedSessions(ctx, sessions, log); err != nil {
		return err
	}

	b := broker.New(broker.Config{Listen: c.Listen}, sessions, log)
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	var adminSrv *http.Server
	if c.AdminListen != "" {
		adminSrv = configureHTTPServer(c.AdminListen, admin.Handler(sessions, b, log))
		go func() {
			log.Info().Str("addr", c.AdminListen).Msg("admin endpoint listening")
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("admin endpoint failed")
			}
		}()
	}

	// Handle interrupts
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()

	if adminSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = adminSrv.Shutdown(shutdownCtx)
	}

	return nil
}

// seedSessions creates sessions for the configured principals and logs their
// tokens so they can be handed to clients.
func (c *ServerCmd) seedSessions(ctx context.Context, sessions store.SessionStore, log zerolog.Logger) error {
	id := 1
	for username, entry := range c.Seed {
		roleName, fullName, ok := strings.Cut(entry, ":")
		if !ok {
			fullName = username
		}

		role, valid := models.ParseRole(roleName)
		if !valid {
			return fmt.Errorf("invalid seed role %q for user %q", roleName, username)
		}

		token, err := sessions.Create(ctx, models.Principal{
			ID:       fmt.Sprintf("seed-%d", id),
			Username: username,
			FullName: fullName,
			Role:     role,
		}, true)
		if err != nil {
			return fmt.Errorf("failed to seed session for %q: %w", username, err)
		}

		log.Info().Str("username", username).Str("role", string(role)).Str("token", token).Msg("seeded session")
		id++
	}

	return nil
}
