package handlers

import (
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/config"
	"github.com/receiptwise/alerting-backend-go/internal/core/governance"
	"github.com/receiptwise/alerting-backend-go/internal/database"
	"github.com/receiptwise/alerting-backend-go/internal/websocket"
)

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	engine *governance.Engine
	repos  *database.Repositories
	db     *sqlx.DB
	cfg    *config.Config
	log    *logrus.Logger
	hub    *websocket.Hub
}

// NewHandlers creates the handler bundle
func NewHandlers(engine *governance.Engine, repos *database.Repositories, db *sqlx.DB, cfg *config.Config, log *logrus.Logger, hub *websocket.Hub) *Handlers {
	return &Handlers{
		engine: engine,
		repos:  repos,
		db:     db,
		cfg:    cfg,
		log:    log,
		hub:    hub,
	}
}
