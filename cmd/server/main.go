package main

import (
	"context"
	"log"
	"net/http"

	"blogclient/internal/app"
	"blogclient/internal/db"
	httpx "blogclient/internal/http"
	"blogclient/internal/platform/otel"
)

func main() {
	cfg, err := app.LoadConfig()
	app.Must(err)

	shutdown, err := otel.Setup(context.Background(), "blog-server")
	app.Must(err)
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	d, err := db.Open(cfg.DatabaseURL)
	app.Must(err)
	defer d.Close()
	app.Must(db.Migrate(d))

	srv := httpx.NewServer(d, cfg)
	log.Printf("listening on %s (driver=%s)", cfg.Addr, db.Driver(cfg.DatabaseURL))
	app.Must(http.ListenAndServe(cfg.Addr, srv))
}
