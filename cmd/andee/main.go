package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/andee-ai/andee/internal/api"
	"github.com/andee-ai/andee/internal/calendar"
	"github.com/andee-ai/andee/internal/dialogue"
	"github.com/andee-ai/andee/internal/engine"
	"github.com/andee-ai/andee/internal/genai"
	"github.com/andee-ai/andee/internal/lockfile"
	"github.com/andee-ai/andee/internal/notify"
	"github.com/andee-ai/andee/internal/speech"
	"github.com/andee-ai/andee/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Andee state data
	DefaultStateDir = "/var/lib/andee"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "andee.db"
	// DefaultAPIAddr is the default HTTP API listen address
	DefaultAPIAddr = ":8080"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	store, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize meeting store", "error", err)
		os.Exit(1)
	}

	generator, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize generation client", "error", err)
		os.Exit(1)
	}

	notifier := buildNotifier(flags)
	synthesizer := buildSynthesizer(flags)
	capture := speech.NewChannelCapture(speech.DefaultListenWindow)

	eng, err := engine.New(
		engine.WithStore(store),
		engine.WithCapture(capture),
		engine.WithSynthesizer(synthesizer),
		engine.WithGenerator(generator),
		engine.WithNotifier(notifier),
		engine.WithBufferMinutes(*flags.bufferMinutes),
		engine.WithTravelMinutes(*flags.travelMinutes),
		engine.WithRetryCap(*flags.retryCap),
	)
	if err != nil {
		slog.Error("Failed to assemble engine", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(eng, store, api.WithAddr(*flags.apiAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Run(); err != nil {
			slog.Error("API server failed", "error", err)
			stop()
		}
	}()

	slog.Info("Andee starting", "state_dir", *flags.stateDir, "api_addr", *flags.apiAddr,
		"buffer_minutes", *flags.bufferMinutes, "travel_minutes", *flags.travelMinutes)
	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Andee failed to run", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), api.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("API server shutdown failed", "error", err)
	}
	slog.Info("Andee exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir      string
	DBDSN         string
	CalDAVURL     string
	CalDAVUser    string
	CalDAVPass    string
	CalDAVPath    string
	OpenAIKey     string
	TTSKey        string
	APIAddr       string
	BufferMinutes int
	TravelMinutes int
	UseWhatsApp   bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	caldavURL     *string
	caldavUser    *string
	caldavPass    *string
	caldavPath    *string
	openaiKey     *string
	ttsKey        *string
	apiAddr       *string
	bufferMinutes *int
	travelMinutes *int
	retryCap      *int
	useWhatsApp   *bool
	qrOutput      *string
	numeric       *bool
	player        *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:      os.Getenv("ANDEE_STATE_DIR"),
		DBDSN:         os.Getenv("ANDEE_DB_DSN"),
		CalDAVURL:     os.Getenv("CALDAV_URL"),
		CalDAVUser:    os.Getenv("CALDAV_USERNAME"),
		CalDAVPass:    os.Getenv("CALDAV_PASSWORD"),
		CalDAVPath:    os.Getenv("CALDAV_CALENDAR_PATH"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		TTSKey:        os.Getenv("GOOGLE_TTS_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
		BufferMinutes: util.ParseIntEnv("ANDEE_BUFFER_MINUTES", 5),
		TravelMinutes: util.ParseIntEnv("ANDEE_TRAVEL_MINUTES", 25),
		UseWhatsApp:   util.ParseBoolEnv("ANDEE_USE_WHATSAPP", false),
	}

	if config.DBDSN == "" {
		config.DBDSN = os.Getenv("DATABASE_URL")
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No ANDEE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DBDSN == "" && config.CalDAVURL == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DBDSN)
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}

	slog.Debug("environment variables loaded",
		"ANDEE_STATE_DIR", config.StateDir,
		"ANDEE_DB_DSN_SET", config.DBDSN != "",
		"CALDAV_URL_SET", config.CalDAVURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GOOGLE_TTS_API_KEY_SET", config.TTSKey != "",
		"API_ADDR", config.APIAddr,
		"ANDEE_USE_WHATSAPP", config.UseWhatsApp)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for Andee data (overrides $ANDEE_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DBDSN, "database DSN for the meeting store (overrides $ANDEE_DB_DSN or $DATABASE_URL)"),
		caldavURL:     flag.String("caldav-url", config.CalDAVURL, "CalDAV server base URL (overrides $CALDAV_URL)"),
		caldavUser:    flag.String("caldav-username", config.CalDAVUser, "CalDAV username (overrides $CALDAV_USERNAME)"),
		caldavPass:    flag.String("caldav-password", config.CalDAVPass, "CalDAV password (overrides $CALDAV_PASSWORD)"),
		caldavPath:    flag.String("caldav-path", config.CalDAVPath, "CalDAV calendar collection path (overrides $CALDAV_CALENDAR_PATH)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		ttsKey:        flag.String("tts-api-key", config.TTSKey, "Google Cloud Text-to-Speech API key (overrides $GOOGLE_TTS_API_KEY)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		bufferMinutes: flag.Int("buffer-minutes", config.BufferMinutes, "wrap-up buffer added to travel time (overrides $ANDEE_BUFFER_MINUTES)"),
		travelMinutes: flag.Int("travel-minutes", config.TravelMinutes, "static travel time estimate in minutes (overrides $ANDEE_TRAVEL_MINUTES)"),
		retryCap:      flag.Int("retry-cap", dialogue.DefaultRetryCap, "consecutive failed listen attempts before a session gives up"),
		useWhatsApp:   flag.Bool("use-whatsapp", config.UseWhatsApp, "notify clients over WhatsApp instead of Twilio SMS (overrides $ANDEE_USE_WHATSAPP)"),
		qrOutput:      flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		player:        flag.String("audio-player", "", "audio player command for synthesized speech (default mpg123)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"caldavURL_set", *flags.caldavURL != "",
		"openaiKeySet", *flags.openaiKey != "",
		"ttsKeySet", *flags.ttsKey != "",
		"apiAddr", *flags.apiAddr,
		"bufferMinutes", *flags.bufferMinutes,
		"travelMinutes", *flags.travelMinutes,
		"useWhatsApp", *flags.useWhatsApp)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return err
	}
	if *flags.dbDSN != "" && calendar.DetectDSNType(*flags.dbDSN) == "sqlite3" {
		dbDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStore selects and opens the meeting store backend. CalDAV wins over a
// database DSN; with neither the store is in-memory.
func buildStore(flags Flags) (calendar.MeetingStore, error) {
	if *flags.caldavURL != "" {
		slog.Info("Using CalDAV meeting store", "url", *flags.caldavURL)
		store := calendar.NewCalDAVStore(*flags.caldavURL, *flags.caldavUser, *flags.caldavPass)
		if *flags.caldavPath != "" {
			store = store.WithCalendarPath(*flags.caldavPath)
		}
		return store, nil
	}
	if *flags.dbDSN != "" {
		if calendar.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Info("Using PostgreSQL meeting store")
			return calendar.NewPostgresStore(calendar.WithPostgresDSN(*flags.dbDSN))
		}
		slog.Info("Using SQLite meeting store", "db_path", *flags.dbDSN)
		return calendar.NewSQLiteStore(calendar.WithSQLiteDSN(*flags.dbDSN))
	}
	slog.Info("No DSN or CalDAV URL provided, using in-memory meeting store")
	return calendar.NewInMemoryStore(), nil
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildNotifier selects the client notification channel. Missing credentials
// degrade to a recording sender so meetings still get rescheduled locally.
func buildNotifier(flags Flags) notify.Service {
	if *flags.useWhatsApp {
		var waOpts []notify.WhatsAppOption
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, notify.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, notify.WithNumericCode())
		}
		sender, err := notify.NewWhatsAppSender(waOpts...)
		if err != nil {
			slog.Error("Failed to initialize WhatsApp sender, client notifications disabled", "error", err)
			return notify.NewMockSender()
		}
		return sender
	}

	sender, err := notify.NewTwilioSender()
	if err != nil {
		slog.Warn("Twilio credentials missing, client notifications disabled", "error", err)
		return notify.NewMockSender()
	}
	return sender
}

// buildSynthesizer wires Google TTS to the local audio player. Without an API
// key speech output is disabled and replies only appear in the logs.
func buildSynthesizer(flags Flags) speech.Synthesizer {
	if *flags.ttsKey == "" {
		slog.Warn("No Google TTS API key provided, speech output disabled")
		return &speech.RecordingSynthesizer{}
	}

	sink := speech.NewCommandSink(strings.Fields(*flags.player)...)

	synth, err := speech.NewGoogleSynthesizer(
		speech.WithTTSAPIKey(*flags.ttsKey),
		speech.WithSink(sink),
	)
	if err != nil {
		slog.Error("Failed to initialize Google TTS synthesizer, speech output disabled", "error", err)
		return &speech.RecordingSynthesizer{}
	}
	return synth
}
