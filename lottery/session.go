package lottery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"lottery-server-go/ledger"
	"lottery-server-go/models"
	"lottery-server-go/roster"
)

// onLedgerChange runs after every ledger mutation: local save, shared push
// for local edits, then display refresh.
func (l *Lottery) onLedgerChange(ch ledger.Change) {
	ctx := context.Background()
	if ch.Origin != ledger.Restore {
		l.persist(ctx, ch.Snapshot)
	}
	if ch.Origin == ledger.Local && l.opts.Sync != nil {
		var err error
		if ch.Kind == ledger.Cleared {
			err = l.opts.Sync.RemoveSnapshot()
		} else {
			err = l.opts.Sync.PushSnapshot(ch.Snapshot)
		}
		if err != nil {
			log.Printf("Shared sync push failed, keeping local state only: %v", err)
		}
	}
	if l.opts.Presenter != nil {
		l.opts.Presenter.ShowWinners(l.winnerList(ch.Snapshot))
	}
}

func (l *Lottery) persist(ctx context.Context, snap models.Snapshot) {
	if l.opts.Store == nil {
		return
	}
	if err := l.opts.Store.SaveState(ctx, models.NewPersistedState(snap, l.CurrentStage())); err != nil {
		log.Printf("Error saving local state: %v", err)
	}
}

// Restore loads the saved roster and ledger. When the shared store holds a
// snapshot it wins over the local copy.
func (l *Lottery) Restore(ctx context.Context) error {
	if l.opts.Store != nil {
		students, err := l.opts.Store.LoadRoster(ctx)
		if err != nil {
			return fmt.Errorf("restore roster: %w", err)
		}
		if len(students) > 0 {
			l.roster.Use(roster.NewTable(students))
			log.Printf("Restored %d students from storage", len(students))
		}
	}

	var local models.PersistedState
	var haveLocal bool
	if l.opts.Store != nil {
		st, ok, err := l.opts.Store.LoadState(ctx)
		if err != nil {
			return fmt.Errorf("restore state: %w", err)
		}
		local, haveLocal = st, ok
	}
	if haveLocal {
		if _, ok := l.policy.Lookup(local.CurrentStage); ok {
			l.current.Store(int64(local.CurrentStage))
		}
	}

	if l.opts.Sync != nil {
		snap, ok, err := l.opts.Sync.FetchSnapshot()
		switch {
		case err != nil:
			log.Printf("Shared snapshot unavailable, using local state: %v", err)
		case ok:
			l.ledger.Replace(snap, ledger.Remote)
			log.Printf("Restored %d winners from shared store", len(snap.List))
			return nil
		}
	}

	if haveLocal {
		snap := local.Snapshot()
		l.ledger.Replace(snap, ledger.Restore)
		log.Printf("Restored %d winners from local state", len(snap.List))
	}
	return nil
}

// ApplyRemote replaces the ledger with a snapshot received from another
// device. Last writer wins.
func (l *Lottery) ApplyRemote(snap models.Snapshot) {
	l.ledger.Replace(snap, ledger.Remote)
}

// ImportResult summarizes an accepted roster import.
type ImportResult struct {
	Students int            `json:"students"`
	Classes  []models.Clazz `json:"classes"`
}

// ImportRoster reads an .xlsx workbook and makes it the active roster. On
// error the previous roster stays active.
func (l *Lottery) ImportRoster(ctx context.Context, r io.Reader) (ImportResult, error) {
	t, err := roster.ReadWorkbook(r)
	if err != nil {
		return ImportResult{}, err
	}
	return l.install(ctx, t), nil
}

// ImportRows is ImportRoster for an already decoded grid.
func (l *Lottery) ImportRows(ctx context.Context, rows [][]string) (ImportResult, error) {
	t, err := roster.ParseRows(rows)
	if err != nil {
		return ImportResult{}, err
	}
	return l.install(ctx, t), nil
}

// ImportFile imports the workbook at path.
func (l *Lottery) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open roster file: %w", err)
	}
	defer f.Close()
	return l.ImportRoster(ctx, f)
}

func (l *Lottery) install(ctx context.Context, t *roster.Table) ImportResult {
	l.roster.Use(t)
	students := t.Entries()
	if l.opts.Store != nil {
		if err := l.opts.Store.SaveRoster(ctx, students); err != nil {
			log.Printf("Error saving roster: %v", err)
		}
	}
	if l.opts.Sync != nil {
		if err := l.opts.Sync.SaveRoster(students); err != nil {
			log.Printf("Shared roster mirror failed: %v", err)
		}
	}
	if l.opts.Presenter != nil {
		l.opts.Presenter.ShowWinners(l.Winners())
	}
	log.Printf("Imported %d students", len(students))
	return ImportResult{Students: len(students), Classes: t.Classes()}
}

// IsMissingFile reports whether an ImportFile error means the file does not
// exist.
func IsMissingFile(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// UseRoster makes students the active roster, as if imported.
func (l *Lottery) UseRoster(ctx context.Context, students []models.Student) ImportResult {
	return l.install(ctx, roster.NewTable(students))
}
