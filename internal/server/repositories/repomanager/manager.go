package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/devices"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/events"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/files"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/identities"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/modifications"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/refreshtokens"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Identities(db dbx.DBTX) identities.Repository
	Devices(db dbx.DBTX) devices.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Modifications(db dbx.DBTX) modifications.Repository
	Events(db dbx.DBTX) events.Repository
	Files(db dbx.DBTX) files.Repository
}
