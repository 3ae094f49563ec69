package main

import (
	"go.uber.org/fx"

	"github.com/velomarket/auction-service/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
