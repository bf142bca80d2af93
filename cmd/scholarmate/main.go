// Command scholarmate is a study assistant backed by Gemini with web search
// grounding.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	scholarmate            # interactive chat in the terminal
//	scholarmate serve      # HTTP and WebSocket API
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nstogner/scholarmate/pkg/chat"
	"github.com/nstogner/scholarmate/pkg/config"
	"github.com/nstogner/scholarmate/pkg/controller"
	"github.com/nstogner/scholarmate/pkg/model/gemini"
	"github.com/nstogner/scholarmate/pkg/transcript"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "scholarmate",
	Short: "ScholarMate - a study buddy with live web search",
	Long: `ScholarMate answers study questions and current-events queries with a
Gemini model that cites the web sources it used.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	RunE:         runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	RunE:  runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "scholarmate.toml", "Path to the TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: TRACE, DEBUG, INFO, WARN, ERROR (or set LOG_LEVEL env)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file used in chat mode")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Merge(&config.Config{LogLevel: logLevel, LogFile: logFile})
	return cfg, nil
}

func setupLogging(w io.Writer, cfg *config.Config) {
	level := config.ParseLevel(cfg.LogLevel)
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	slog.Info("Logging initialized", "level", level)
}

// app wires the chat core for either front-end.
type app struct {
	provider   *gemini.Provider
	controller *controller.Controller
	transcript *transcript.Transcript
}

func newApp(cfg *config.Config) *app {
	if cfg.APIKey == "" {
		slog.Error("No API key configured; set GEMINI_API_KEY or API_KEY. Messages will fail until one is provided.")
	}

	provider := gemini.New(gemini.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
	})
	sessions := chat.NewSessionManager(provider, cfg.ChatConfig())
	tr := transcript.New()

	return &app{
		provider:   provider,
		controller: controller.New(sessions, chat.NewStreamer(sessions), tr),
		transcript: tr,
	}
}

func (a *app) Close() {
	a.transcript.Close()
}
