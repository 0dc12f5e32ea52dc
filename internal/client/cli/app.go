package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/datawallet/internal/client/account"
	"github.com/dmitrijs2005/datawallet/internal/client/config"
	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

// App is one interactive session. At most one account is open at a time.
type App struct {
	config    *config.Config
	connector account.Connector
	rt        *account.Runtime
	acct      *account.Account
	log       logging.Logger

	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config, connector account.Connector, in io.Reader, out io.Writer, log logging.Logger) *App {
	if log == nil {
		log = logging.Nop()
	}
	return &App{
		config:    c,
		connector: connector,
		rt:        account.NewRuntime(log),
		log:       log.With("module", "cli"),
		reader:    bufio.NewReader(in),
		out:       out,
	}
}

// Run reads commands until the input ends or the user exits, then closes
// the runtime.
func (a *App) Run(ctx context.Context) error {
	unsubscribe := a.rt.Bus().Subscribe(eventbus.DatawalletSynchronized, func(ev eventbus.Event) {
		a.log.Info(ctx, "datawallet synchronized", "account", ev.Account, "data", ev.Data)
	})
	defer unsubscribe()

	fmt.Fprintln(a.out, "Datawallet CLI (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader)
	return a.rt.Close()
}

func (a *App) isOpen() bool { return a.acct != nil }

func (a *App) status() string {
	if a.acct == nil {
		return ""
	}
	s := a.acct.Username
	if a.acct.Offline {
		s += " offline"
	}
	return "(" + s + ")"
}

func (a *App) current() (*account.Account, error) {
	if a.acct == nil {
		return nil, fmt.Errorf("no account open: %w", common.ErrValidation)
	}
	return a.acct, nil
}

func (a *App) accountOptions(username string, passphrase []byte) account.Options {
	return account.Options{
		Username:   username,
		Passphrase: passphrase,
		DataDir:    a.config.DataDir,
		Connector:  a.connector,
		Sync:       a.config.SyncConfig(),
		Coalesce:   a.config.Coalesce,
		Push:       a.config.PushNotifications,
	}
}
