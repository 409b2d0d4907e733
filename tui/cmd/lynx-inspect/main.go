package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lynxrender/tui/internal/app"
	"github.com/lynxrender/tui/internal/client"
	"github.com/lynxrender/tui/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to the inspector config file")
	wsURL := flag.String("url", "", "WebSocket URL of the render host devtool server")
	token := flag.String("token", "", "Auth token (if the render host requires it)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *wsURL != "" {
		cfg.URL = *wsURL
	}
	if *token != "" {
		cfg.Token = *token
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ws := client.NewWSClient(cfg.URL, cfg.Token)
	httpClient := client.NewHTTPClient(cfg.HTTPBase(), cfg.Token)

	m := app.New(ws, httpClient, app.Options{
		StatusInterval: cfg.StatusInterval,
		HelpStyle:      cfg.HelpStyle,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err = p.Run()
	ws.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
