// Package replication implements the row-event applier:
// dispatching decoded INSERT/UPDATE/DELETE/DDL events into the right
// table's index and document store, atomically, with rollback on partial
// failure.
package replication

import (
	"fmt"
	"log/slog"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/invalidation"
	"github.com/libraz/mygramdb-go/internal/ngram"
	"github.com/libraz/mygramdb-go/internal/tablectx"
)

// normalizeOpts is the canonical normalization applied before text reaches
// the index, matching the query planner's termTokens and the snapshot
// loader's pre-batch normalization: an Index's tokenize assumes its caller
// already normalized, and a decoded replication event's text never has
// been.
var normalizeOpts = ngram.NormalizeOptions{NFKC: true, Width: ngram.WidthNarrow, Lower: true}

func normalizeText(text string) string {
	return string(ngram.Normalize(text, normalizeOpts))
}

// TableLookup resolves a table name to its live context, for tables the
// applier is configured to mirror.
type TableLookup func(table string) (*tablectx.Context, bool)

// AlarmFunc is invoked when a DDL DROP arrives for a mirrored table — the
// original decoder treats this as a hard-alarm condition, but aborting the
// process is off the table here, so callers get a hook instead (paging,
// metrics, halting just that table) and the applier continues running.
type AlarmFunc func(table string)

// RenameFunc is invoked when a DDL RENAME arrives for a mirrored table,
// after the table's own context has already been updated to the new name.
// The table registry the TableLookup closure reads from is owned by the
// caller, not the applier, so re-keying it (so lookups and wire commands
// against the new name keep working) is the caller's job.
type RenameFunc func(oldName, newName string)

// Applier dispatches RowEvents per the table. It holds no
// per-table state itself beyond the shared counters and the current
// logical position; the tables it mutates own their own locks.
type Applier struct {
	tables          TableLookup
	invalidate      func(table string, d invalidation.Descriptor)
	onDrop          AlarmFunc
	onRename        RenameFunc
	logger          *slog.Logger
	counters        domain.ApplyCounters
	currentPosition string
}

// New builds an Applier. invalidate is called after every successful
// mutation with the table name and the (old_text, new_text) pair to
// enqueue into C8's async queue; it is a function rather than a direct
// *invalidation.AsyncQueue reference because each table owns its own
// queue and engine.
func New(tables TableLookup, invalidate func(table string, d invalidation.Descriptor), logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{tables: tables, invalidate: invalidate, logger: logger}
}

// SetAlarmFunc installs the hook Apply calls on a DDL DROP, in place of the
// default (logging only). Nil disables the hook.
func (a *Applier) SetAlarmFunc(fn AlarmFunc) { a.onDrop = fn }

// SetRenameFunc installs the hook Apply calls on a DDL RENAME, after the
// table context itself has been re-pointed at the new name. Nil disables
// the hook, leaving the rename visible only on the table context's own
// Config.Name field.
func (a *Applier) SetRenameFunc(fn RenameFunc) { a.onRename = fn }

func (a *Applier) Counters() domain.ApplyCounters { return a.counters }

func (a *Applier) CurrentPosition() string { return a.currentPosition }

// SetPosition resumes the applier from pos, used after a snapshot load or a
// SAVE/LOAD dump restore seeds the starting replication position rather than
// an event ever having set it.
func (a *Applier) SetPosition(pos string) { a.currentPosition = pos }

// Apply processes one decoded row event through the kind x exists x
// required-filter-match dispatch table.
func (a *Applier) Apply(event domain.RowEvent) error {
	ctx, configured := a.tables(event.Table)
	if !configured {
		a.counters.EventsSkippedOtherTables++
		return nil
	}

	if event.Kind == domain.EventDDL {
		return a.applyDDL(ctx, event)
	}

	ctx.Lock()
	defer ctx.Unlock()

	if ctx.HaltedLocked() {
		return fmt.Errorf("table %q is halted: %w", event.Table, domain.ErrTableHalted)
	}

	matchesRequired := ctx.Config.RequiredFilters.Matches(event.Filters)
	docID, exists := ctx.Store.GetDocID(event.PrimaryKey)

	var err error
	switch event.Kind {
	case domain.EventInsert:
		err = a.applyInsert(ctx, event, matchesRequired)
	case domain.EventUpdate:
		err = a.applyUpdate(ctx, event, docID, exists, matchesRequired)
	case domain.EventDelete:
		err = a.applyDelete(ctx, event, docID, exists)
	default:
		err = fmt.Errorf("%w: unknown event kind", domain.ErrInvalidInput)
	}
	if err == nil && event.Position != "" {
		a.currentPosition = event.Position
	}
	return err
}

func (a *Applier) applyInsert(ctx *tablectx.Context, event domain.RowEvent, matches bool) error {
	if !matches {
		a.counters.InsertsSkipped++
		return nil
	}
	id, err := ctx.Store.AddDocument(event.PrimaryKey, event.Filters)
	if err != nil {
		a.logger.Error("replication insert: add_document failed", "table", event.Table, "err", err)
		return fmt.Errorf("add_document: %w", err)
	}
	ctx.Index.AddDoc(id, normalizeText(event.Text))
	a.counters.InsertsApplied++
	a.enqueueInvalidation(event.Table, "", event.Text)
	return nil
}

func (a *Applier) applyUpdate(ctx *tablectx.Context, event domain.RowEvent, docID domain.DocID, exists, matches bool) error {
	switch {
	case exists && !matches:
		if err := ctx.Store.RemoveDocument(docID); err != nil {
			a.logger.Error("replication update: remove_document failed", "table", event.Table, "err", err)
			return fmt.Errorf("remove_document: %w", err)
		}
		ctx.Index.RemoveDoc(docID, normalizeText(event.OldText))
		a.counters.UpdatesRemoved++
		a.enqueueInvalidation(event.Table, event.OldText, "")
		return nil

	case !exists && matches:
		id, err := ctx.Store.AddDocument(event.PrimaryKey, event.Filters)
		if err != nil {
			a.logger.Error("replication update: add_document failed", "table", event.Table, "err", err)
			return fmt.Errorf("add_document: %w", err)
		}
		ctx.Index.AddDoc(id, normalizeText(event.Text))
		a.counters.UpdatesAdded++
		a.enqueueInvalidation(event.Table, "", event.Text)
		return nil

	case exists && matches:
		// Atomicity: index and store must end up agreeing, or neither
		// change — UpdateDocument never fails for an existing doc id, so
		// update the index first and the store second is safe either
		// order here; store is updated last so a doc-store invariant
		// violation (should one ever be introduced) leaves the index,
		// not the store, as the single source of truth to re-derive from.
		oldNorm, newNorm := normalizeText(event.OldText), normalizeText(event.Text)
		ctx.Index.UpdateDoc(docID, oldNorm, newNorm)
		if err := ctx.Store.UpdateDocument(docID, event.Filters); err != nil {
			// Roll back the index mutation: the symmetric difference is
			// its own inverse when old/new are swapped.
			ctx.Index.UpdateDoc(docID, newNorm, oldNorm)
			a.logger.Error("replication update: update_document failed, rolled back index", "table", event.Table, "err", err)
			return fmt.Errorf("update_document: %w", err)
		}
		a.counters.UpdatesModified++
		a.enqueueInvalidation(event.Table, event.OldText, event.Text)
		return nil

	default: // !exists && !matches
		a.counters.UpdatesSkipped++
		return nil
	}
}

func (a *Applier) applyDelete(ctx *tablectx.Context, event domain.RowEvent, docID domain.DocID, exists bool) error {
	if !exists {
		a.counters.DeletesSkipped++
		return nil
	}
	if err := ctx.Store.RemoveDocument(docID); err != nil {
		a.logger.Error("replication delete: remove_document failed", "table", event.Table, "err", err)
		return fmt.Errorf("remove_document: %w", err)
	}
	ctx.Index.RemoveDoc(docID, normalizeText(event.OldText))
	a.counters.DeletesApplied++
	a.enqueueInvalidation(event.Table, event.OldText, "")
	return nil
}

// ddlOutcome reports which of the post-unlock hooks applyDDL must fire.
type ddlOutcome struct {
	dropped bool
	renamed bool
}

func (a *Applier) applyDDL(ctx *tablectx.Context, event domain.RowEvent) error {
	outcome := a.applyDDLLocked(ctx, event)
	if outcome.dropped {
		a.logger.Error("DDL DROP received for mirrored table", "table", event.Table)
		if a.onDrop != nil {
			// Called after the table lock is released: onDrop commonly
			// wants to call back into ctx (e.g. Halt), which would
			// deadlock against the Lock this function just held.
			a.onDrop(event.Table)
		}
	}
	if outcome.renamed {
		a.logger.Info("DDL RENAME applied to mirrored table", "table", event.Table, "new_name", event.NewTableName)
		if a.onRename != nil {
			// Called after the table lock is released, for the same
			// reentrancy reason as onDrop: the caller's rename hook
			// typically re-keys a registry that Apply itself reads from
			// on the next event, which must not alias this table's lock.
			a.onRename(event.Table, event.NewTableName)
		}
	}
	a.counters.DDLExecuted++
	return nil
}

func (a *Applier) applyDDLLocked(ctx *tablectx.Context, event domain.RowEvent) (outcome ddlOutcome) {
	ctx.Lock()
	defer ctx.Unlock()

	switch event.DDL {
	case domain.DDLTruncate:
		ctx.Index.Clear()
		ctx.Store.Clear()
		ctx.Invalidation.ClearTable()
	case domain.DDLDrop:
		ctx.Index.Clear()
		ctx.Store.Clear()
		ctx.Invalidation.ClearTable()
		outcome.dropped = true
	case domain.DDLAlter:
		a.logger.Warn("DDL ALTER received for mirrored table, continuing without schema resync", "table", event.Table)
	case domain.DDLRename:
		// The index, store, and invalidation engine all stay valid as-is —
		// a rename changes the table's name, not its rows — so only the
		// context's own label moves to the new name here; the caller's
		// registry re-key happens in the onRename hook below, outside the
		// lock.
		ctx.Config.Name = event.NewTableName
		outcome.renamed = true
	}
	return outcome
}

func (a *Applier) enqueueInvalidation(table, oldText, newText string) {
	if a.invalidate == nil {
		return
	}
	a.invalidate(table, invalidation.Descriptor{Table: table, OldText: oldText, NewText: newText})
}
