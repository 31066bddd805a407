// The email assistant serves a conversational Gmail interface over HTTP
// and MCP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/Karanpal97/constructure-ai/internal/assistant"
	"github.com/Karanpal97/constructure-ai/internal/auth"
	"github.com/Karanpal97/constructure-ai/internal/chat"
	"github.com/Karanpal97/constructure-ai/internal/format"
	"github.com/Karanpal97/constructure-ai/internal/gservice"
	"github.com/Karanpal97/constructure-ai/internal/llm"
	"github.com/Karanpal97/constructure-ai/internal/session"
	"github.com/Karanpal97/constructure-ai/internal/tool"
)

const (
	intentAttempts    = 2
	transformAttempts = 3
)

func main() {
	httpAddr := flag.String("http-addr", "localhost:0", "HTTP server listen addr")
	oauthTokenFile := flag.String("oauth-token-file", "./data/assistant-tokens.json", "Path to cache google oauth tokens, empty to avoid storing")
	oauthURLParam := flag.String("oauth-url", "", "OAuth URL")
	envFileParam := flag.String("env-file", "", "Path to env file")
	sessionTTL := flag.Duration("session-ttl", session.DefaultTTL, "Idle time before a conversation context expires")
	enableStdio := flag.Bool("stdio", false, "Enable stdio transport for MCP (disables stdout logging)")
	logFile := flag.String("log-file", "", "Path to log file (only used with stdio transport, otherwise logs to stdout)")

	flag.Parse()

	logger, syncLogs := setupLogger(enableStdio, logFile)
	defer syncLogs()

	ln := mustListen(httpAddr)
	config := mustCreateOauthCfg(ln.Addr().String(), envFileParam, oauthURLParam)

	if oauthTokenFile == nil {
		panic("-oauth-token-file must be provided")
	}
	tokens, err := auth.NewStore(config, *oauthTokenFile, logger)
	if err != nil {
		panic(fmt.Errorf("auth.NewStore failed: %w", err))
	}

	defer func() {
		logger.Info("persisting tokens")
		if err := tokens.Persist(); err != nil {
			logger.Errorw("tokens.Persist failed", "error", err)
		}
	}()

	gen, err := llm.New(llm.Config{
		Provider:     os.Getenv("AI_PROVIDER"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  os.Getenv("GEMINI_MODEL"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),
	}, logger)
	if err != nil {
		panic(fmt.Errorf("llm.New failed: %w", err))
	}

	sessions, closeSessions := mustCreateSessionStore(*sessionTTL, logger)
	defer closeSessions()

	mailbox := gservice.New(config, tokens, format.Converter{}, logger)
	parser := assistant.NewIntentParser(llm.NewRetry(gen, intentAttempts, logger), logger)
	summarizer := assistant.NewSummarizer(llm.NewRetry(gen, transformAttempts, logger), logger)
	executor := assistant.NewExecutor(mailbox, parser, summarizer, sessions, tokens, logger)

	assistantT := tool.NewServer(executor, mailbox)
	mcpHTTP := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return assistantT }, nil)

	mux := http.NewServeMux()
	mux.Handle("/oauth", auth.NewHTTPHandler(tokens, logger))
	mux.Handle("/chat/", chat.NewHTTPHandler(executor, logger))
	mux.Handle("/mcp", mcpHTTP)

	srv := &http.Server{
		Handler: mux,
	}

	shutdown := make(chan os.Signal, 1)

	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	stopHTTP, errHTTPCh := serveHTTP(srv, ln, logger)
	defer stopHTTP()

	var errStdioCh <-chan error
	if *enableStdio {
		var stopStdio func()
		stopStdio, errStdioCh = serveStdio(assistantT, logger)
		defer stopStdio()
	}

	select {
	case err := <-errHTTPCh:
		logger.Errorw("http server error", "error", err)
	case err := <-errStdioCh:
		logger.Errorw("stdio transport error", "error", err)
	case <-shutdown:
		logger.Info("shutdown signal received")
	}
}

func serveStdio(srv *mcp.Server, logger *zap.SugaredLogger) (func(), <-chan error) {
	errStdioCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(errStdioCh)
		logger.Info("starting stdio transport")

		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			errStdioCh <- fmt.Errorf("srv.Run failed: %w", err)
		}
	}()

	return func() {
		cancel()

		<-errStdioCh
		logger.Info("stdio transport stopped")
	}, errStdioCh
}

func serveHTTP(srv *http.Server, ln net.Listener, logger *zap.SugaredLogger) (func(), <-chan error) {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		logger.Infow("starting http server", "addr", ln.Addr().String())

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("srv.Serve failed: %w", err)
			logger.Error(err)
			errHTTPCh <- err
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorw("srv.Shutdown failed", "error", err)
		}

		<-errHTTPCh
		logger.Info("http server stopped")
	}, errHTTPCh
}

func mustListen(httpAddr *string) net.Listener {
	if httpAddr == nil {
		panic("-http-addr must be provided")
	}

	ln, err := net.Listen("tcp", *httpAddr)
	if err != nil {
		panic(fmt.Errorf("net.Listen failed: %w", err))
	}

	return ln
}

func mustCreateOauthCfg(lnAddr string, envFileParam, oauthURLParam *string) *oauth2.Config {
	if envFileParam != nil && *envFileParam != "" {
		if err := godotenv.Load(*envFileParam); err != nil {
			panic(fmt.Errorf("godotenv.Load failed: %w", err))
		}
	}

	oauthClientID := os.Getenv("OAUTH_GOOGLE_CLIENT_ID")
	oauthClientSec := os.Getenv("OAUTH_GOOGLE_CLIENT_SECRET")

	if oauthClientID == "" || oauthClientSec == "" {
		panic("Env variables OAUTH_GOOGLE_CLIENT_ID and OAUTH_GOOGLE_CLIENT_SECRET must be set")
	}

	oauthURL := fmt.Sprintf("http://%s/oauth", lnAddr)
	if oauthURLParam != nil && *oauthURLParam != "" {
		oauthURL = *oauthURLParam
	}

	return &oauth2.Config{
		ClientID:     oauthClientID,
		ClientSecret: oauthClientSec,
		RedirectURL:  oauthURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailSendScope,
			gmail.GmailModifyScope,
		},
		Endpoint: google.Endpoint,
	}
}

func mustCreateSessionStore(ttl time.Duration, logger *zap.SugaredLogger) (session.Store, func()) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(ttl), func() {}
	}

	store, err := session.NewRedisStore(redisURL, ttl)
	if err != nil {
		panic(fmt.Errorf("session.NewRedisStore failed: %w", err))
	}

	logger.Info("using redis session store")

	return store, func() {
		if err := store.Close(); err != nil {
			logger.Errorw("store.Close failed", "error", err)
		}
	}
}

func setupLogger(enableStdio *bool, logFile *string) (*zap.SugaredLogger, func()) {
	cfg := zap.NewProductionConfig()

	switch {
	case *logFile != "":
		cfg.OutputPaths = []string{*logFile}
		cfg.ErrorOutputPaths = []string{*logFile}
	case *enableStdio:
		// Stdout carries the MCP stream; logs must not corrupt it.
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	default:
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Errorf("cfg.Build failed: %w", err))
	}

	return logger.Sugar(), func() { _ = logger.Sync() }
}
