package app

import (
	"database/sql"

	"github.com/fieldscope/vistoria/checklist"
	"github.com/fieldscope/vistoria/config"
	"github.com/fieldscope/vistoria/report"
	"github.com/go-chi/jwtauth/v5"
)

type App struct {
	*sql.DB
	config.Config
	TokenAuth *jwtauth.JWTAuth
	Checklist *checklist.Reconciler
	Reports   *report.Renderer
}
