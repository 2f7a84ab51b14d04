package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"angelvoice/internal/config"
)

func main() {
	configPath := os.Getenv("ANGELVOICE_CONFIG")

	cfg, err := config.Load(configPath)
	if err != nil {
		// startup reports the same error to the UI.
		cfg = config.DefaultConfig()
	}

	app := NewApp(configPath)
	err = wails.Run(&options.App{
		Title:     "Angel Voice",
		Width:     420,
		Height:    640,
		MinWidth:  320,
		MinHeight: 400,
		AssetServer: &assetserver.Options{
			Assets: os.DirFS(cfg.UI.AssetsDir),
		},
		BackgroundColour: &options.RGBA{R: 18, G: 18, B: 28, A: 255},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("wails run failed")
	}
}
