package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-processor/internal/parsing"
	"github.com/zombor/receipt-processor/internal/receipt"
	"github.com/zombor/receipt-processor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-processor")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "receipts.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./uploads", "Storage directory path")
		scannerType   = fs.StringLong("scanner", "tesseract", "Scanner type: 'tesseract', 'gemini' or 'ollama'")
		tesseractBin  = fs.StringLong("tesseract-bin", "tesseract", "Path to the tesseract binary")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		tessdataDir   = fs.StringLong("tessdata-dir", "", "Tesseract tessdata directory (optional)")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		jwtSecret     = fs.StringLong("jwt-secret", "", "HS256 secret for bearer tokens; auth is disabled when empty")
		jwtIssuer     = fs.StringLong("jwt-issuer", "", "Required token issuer (optional)")
		snapTolerance = fs.StringLong("snap-tolerance", parsing.DefaultSnapTolerance.String(), "Largest difference snapped between a printed and computed line total")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		_             = fs.StringLong("config", "", "Config file (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_PROCESSOR"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	tolerance, err := decimal.NewFromString(*snapTolerance)
	if err != nil || tolerance.IsNegative() {
		slog.Error("Invalid snap tolerance", "value", *snapTolerance)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "tesseract":
		slog.Info("Initializing Tesseract scanner...", "binary", *tesseractBin, "lang", *tesseractLang)
		scanner = scanning.NewTesseract(scanning.TesseractConfig{
			Binary:      *tesseractBin,
			Language:    *tesseractLang,
			TessdataDir: *tessdataDir,
			Timeout:     90 * time.Second,
		})
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	engine := parsing.NewEngine(parsing.WithSnapTolerance(tolerance))
	metrics := receipt.NewMetrics()

	receiptService := receipt.NewService(db, scanner, store, engine)
	receiptService.SetMetrics(metrics)

	var verifier receipt.TokenVerifier
	if *jwtSecret != "" {
		verifier = receipt.NewJWTVerifier(*jwtSecret, *jwtIssuer)
	}
	server := receipt.NewServer(receiptService, verifier, metrics)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if verifier == nil {
		slog.Warn("Bearer token auth disabled; all requests run as the local user")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
