package main

import (
	"context"
	"log"

	"github.com/packfactory/packfactory/internal/app"
	"github.com/packfactory/packfactory/internal/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := a.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
