package httpapi

import (
	"fmt"
	"net/http"

	"github.com/andmosc/stockbook/config"
	"github.com/andmosc/stockbook/internal/transport/httpapi/middleware"
)

func NewServer(cfg *config.Config, controller *Controller) *http.Server {
	mux := http.NewServeMux()
	controller.Routes(mux)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      middleware.Logger(mux),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
}
