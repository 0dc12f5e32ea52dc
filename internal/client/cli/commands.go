package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/syncer"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

// getSimpleText, confirm and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var confirm = Confirm
var getPassword = GetPassword

func usage(format string) error {
	return fmt.Errorf("usage: %s: %w", format, common.ErrValidation)
}

// Open prompts for credentials and opens an existing account.
func (a *App) Open(ctx context.Context) error {
	return a.open(ctx, false)
}

// Register prompts for credentials and creates a new identity.
func (a *App) Register(ctx context.Context) error {
	return a.open(ctx, true)
}

func (a *App) open(ctx context.Context, register bool) error {
	if a.acct != nil {
		return fmt.Errorf("account %s is open, close it first: %w", a.acct.Username, common.ErrValidation)
	}
	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	passphrase, err := getPassword(a.out, "Enter passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	opts := a.accountOptions(username, passphrase)
	opts.Register = register
	acct, err := a.rt.Open(ctx, opts)
	if err != nil {
		return err
	}
	a.acct = acct
	if acct.Offline {
		fmt.Fprintf(a.out, "Opened %s offline\n", acct.Address)
	} else {
		fmt.Fprintf(a.out, "Opened %s\n", acct.Address)
	}
	return nil
}

func (a *App) CloseAccount(ctx context.Context) error {
	acct, err := a.current()
	if err != nil {
		return err
	}
	a.acct = nil
	return a.rt.CloseAccount(acct.Address)
}

func (a *App) Sync(ctx context.Context) error {
	acct, err := a.current()
	if err != nil {
		return err
	}
	res, err := acct.Coordinator.SyncEverything(ctx, func(p syncer.Phase, done int) {
		a.log.Debug(ctx, "sync progress", "phase", p, "done", done)
	})
	if res != nil {
		fmt.Fprintf(a.out, "pulled=%d pushed=%d processed=%d skipped=%d\n",
			res.Pulled, res.Pushed, res.Processed, res.Skipped)
		for _, f := range res.Failures {
			fmt.Fprintf(a.out, "failed event %s (#%d): %s\n", f.EventID, f.EventIndex, f.LastError)
		}
	}
	var se *syncer.SyncError
	if errors.As(err, &se) && se.Code == syncer.CodeBlocked {
		fmt.Fprintln(a.out, "Sync is blocked; see 'failures' and 'resolve'")
	}
	return err
}

func (a *App) Status(ctx context.Context) error {
	acct, err := a.current()
	if err != nil {
		return err
	}
	st, err := acct.Coordinator.Status(ctx)
	if err != nil {
		return err
	}
	last := "never"
	if !st.LastDatawallet.IsZero() {
		last = st.LastDatawallet.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(a.out, "address:    %s\ndevice:     %s\ncursor:     %d\ndatawallet: %d (last %s)\npending:    %d\nfailures:   %d\n",
		acct.Address, acct.DeviceID, st.Cursor, st.DatawalletIndex, last, st.Pending, st.Failures)
	return nil
}

func (a *App) Attributes(ctx context.Context) error {
	acct, err := a.current()
	if err != nil {
		return err
	}
	heads, err := acct.Controllers.Attributes.Heads(ctx)
	if err != nil {
		return err
	}
	if len(heads) == 0 {
		fmt.Fprintln(a.out, "No attributes")
	}
	for _, attr := range heads {
		fmt.Fprintf(a.out, "%s  %-16s %s\n", attr.ID, attr.Value.Type, attr.Value.Value)
	}
	return nil
}

func (a *App) AddAttribute(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("addattr <type> <value>")
	}
	acct, err := a.current()
	if err != nil {
		return err
	}
	value, err := jsonValue(args[1:])
	if err != nil {
		return err
	}
	attr, err := acct.Controllers.Attributes.Create(ctx, acct.Address, models.AttributeValue{Type: args[0], Value: value})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Created", attr.ID)
	return nil
}

func (a *App) Succeed(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("succeed <id> <value>")
	}
	acct, err := a.current()
	if err != nil {
		return err
	}
	pred, err := acct.Controllers.Attributes.Get(ctx, args[0])
	if err != nil {
		return err
	}
	value, err := jsonValue(args[1:])
	if err != nil {
		return err
	}
	attr, err := acct.Controllers.Attributes.Succeed(ctx, pred.ID, models.AttributeValue{Type: pred.Value.Type, Value: value})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Created", attr.ID)
	return nil
}

func (a *App) Relationships(ctx context.Context) error {
	acct, err := a.current()
	if err != nil {
		return err
	}
	rels, err := acct.Controllers.Relationships.List(ctx)
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		fmt.Fprintln(a.out, "No relationships")
	}
	for _, r := range rels {
		line := fmt.Sprintf("%s  %-24s %s", r.ID, r.Peer, r.Status)
		if r.PeerDeletionInfo != nil {
			line += fmt.Sprintf(" (peer %s)", r.PeerDeletionInfo.DeletionStatus)
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func (a *App) Terminate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("terminate <id>")
	}
	acct, err := a.current()
	if err != nil {
		return err
	}
	rel, err := acct.Controllers.Relationships.Terminate(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, rel.ID, rel.Status)
	return nil
}

func (a *App) Decompose(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("decompose <id>")
	}
	acct, err := a.current()
	if err != nil {
		return err
	}
	ok, err := confirm(a.reader, "Decompose "+args[0]+"? It is removed from every device", a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if err := acct.Controllers.Relationships.Decompose(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Decomposed", args[0])
	return nil
}

func (a *App) Settings(ctx context.Context) error {
	acct, err := a.current()
	if err != nil {
		return err
	}
	all, err := acct.Controllers.Settings.List(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(a.out, "No settings")
	}
	for _, s := range all {
		fmt.Fprintf(a.out, "%s  %-16s %s\n", s.ID, s.Key, s.Value)
	}
	return nil
}

// Set updates the setting that currently wins for key, or creates one.
func (a *App) Set(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("set <key> <json>")
	}
	acct, err := a.current()
	if err != nil {
		return err
	}
	value, err := jsonValue(args[1:])
	if err != nil {
		return err
	}

	settings := acct.Controllers.Settings
	cur, err := settings.GetByKey(ctx, args[0])
	switch {
	case errors.Is(err, common.ErrorNotFound):
		s, err := settings.Create(ctx, args[0], value, "", "")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Created", s.ID)
		return nil
	case err != nil:
		return err
	}
	if _, err := settings.Update(ctx, cur.ID, value); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Updated", cur.ID)
	return nil
}

func (a *App) Failures(ctx context.Context) error {
	acct, err := a.current()
	if err != nil {
		return err
	}
	failures, err := acct.Coordinator.Failures(ctx)
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		fmt.Fprintln(a.out, "No failures")
	}
	for _, f := range failures {
		kind := "retrying"
		if f.Permanent {
			kind = "permanent"
		}
		fmt.Fprintf(a.out, "%s  #%d %s %s x%d: %s\n", f.EventID, f.EventIndex, f.Type, kind, f.ErrorCount, f.LastError)
	}
	return nil
}

func (a *App) Resolve(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("resolve <event id>")
	}
	acct, err := a.current()
	if err != nil {
		return err
	}
	if err := acct.Coordinator.ResolveFailure(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Resolved", args[0])
	return nil
}

// jsonValue joins args and returns them as JSON. Text that is not valid
// JSON becomes a JSON string.
func jsonValue(args []string) (json.RawMessage, error) {
	s := strings.Join(args, " ")
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}
