package ingest

import (
	"context"
	"fmt"

	"raspisanie/internal/resolve"
	"raspisanie/internal/storage"
	"raspisanie/internal/timetable"
	logx "raspisanie/pkg/logx"
)

// StoreSink writes events through a storage transaction.
type StoreSink struct {
	store    storage.Store
	resolver resolve.Resolver
	log      logx.Logger
	onMiss   func(entity string)
}

type StoreOptions struct {
	Log logx.Logger
	// OnMiss is called for every relation dropped because the entity is unknown.
	OnMiss func(entity string)
}

func NewStoreSink(st storage.Store, r resolve.Resolver, opts StoreOptions) *StoreSink {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &StoreSink{
		store:    st,
		resolver: r,
		log:      log.With(logx.String("comp", "ingest")),
		onMiss:   opts.OnMiss,
	}
}

// Apply replays events in one transaction. A date's sessions (and a date's
// cafeteria slots) are deleted the first time the cycle touches that date
// and never again, so several tables for one date accumulate.
func (s *StoreSink) Apply(ctx context.Context, events []Event, fingerprints map[string]string) (Stats, error) {
	var stats Stats
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		stats = Stats{}
		c := cycle{sink: s, tx: tx, stats: &stats,
			sessionDates: map[timetable.Date]bool{},
			cvpDates:     map[timetable.Date]bool{},
		}
		for _, e := range events {
			if err := c.apply(ctx, e); err != nil {
				return fmt.Errorf("%s: %w", e.Kind, err)
			}
		}
		for key, sum := range fingerprints {
			if err := tx.PutFingerprint(ctx, key, sum); err != nil {
				return fmt.Errorf("fingerprint %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// cycle holds the per-Apply state.
type cycle struct {
	sink         *StoreSink
	tx           storage.Tx
	stats        *Stats
	sessionDates map[timetable.Date]bool
	cvpDates     map[timetable.Date]bool
}

func (c *cycle) apply(ctx context.Context, e Event) error {
	switch e.Kind {
	case KindNewDate:
		return c.touchSessions(ctx, e.Date)
	case KindPair:
		if err := c.touchSessions(ctx, e.Draft.Date); err != nil {
			return err
		}
		return c.pair(ctx, e.Draft)
	case KindNewCallSchedule:
		return c.tx.DeleteCallSchedule(ctx)
	case KindPairTime:
		if err := c.tx.UpsertCallEntry(ctx, e.Call); err != nil {
			return err
		}
		c.stats.CallEntries++
	case KindNewCvpDate:
		return c.touchCafeteria(ctx, e.Date)
	case KindCvpItem:
		if err := c.touchCafeteria(ctx, e.Slot.Date); err != nil {
			return err
		}
		return c.cvpItem(ctx, e.Slot)
	}
	return nil
}

func (c *cycle) touchSessions(ctx context.Context, d timetable.Date) error {
	if c.sessionDates[d] {
		return nil
	}
	c.sessionDates[d] = true
	n, err := c.tx.DeleteSessionsForDate(ctx, d)
	if err != nil {
		return err
	}
	c.stats.DatesReplaced++
	c.sink.log.Debug("date replaced", logx.String("date", d.String()), logx.Int64("deleted", n))
	return nil
}

func (c *cycle) touchCafeteria(ctx context.Context, d timetable.Date) error {
	if c.cvpDates[d] {
		return nil
	}
	c.cvpDates[d] = true
	return c.tx.DeleteCafeteriaForDate(ctx, d)
}

func (c *cycle) pair(ctx context.Context, d timetable.SessionDraft) error {
	r := c.sink.resolver
	group, ok, err := r.ResolveGroup(ctx, c.tx, d.Group)
	if err != nil {
		return err
	}
	if !ok {
		c.miss(EntityGroup, d.Group.String())
		return nil
	}
	subject, err := r.ResolveSubject(ctx, c.tx, d.Subject)
	if err != nil {
		return err
	}
	sess := storage.Session{
		Date:         d.Date,
		Pair:         d.Pair,
		GroupID:      group.ID,
		Subject:      subject,
		Subgroup:     d.Subgroup,
		Substitution: d.Substitution,
		Raw:          d.Raw,
	}
	for _, tn := range d.Teachers {
		t, ok, err := r.ResolveTeacher(ctx, c.tx, tn)
		if err != nil {
			return err
		}
		if !ok {
			c.miss(EntityTeacher, tn.String())
			continue
		}
		sess.TeacherIDs = append(sess.TeacherIDs, t.ID)
	}
	for _, ref := range d.Cabinets {
		cab, ok, err := r.ResolveCabinet(ctx, c.tx, ref)
		if err != nil {
			return err
		}
		if !ok {
			c.miss(EntityCabinet, fmt.Sprint(ref.Number))
			continue
		}
		sess.CabinetIDs = append(sess.CabinetIDs, cab.ID)
	}
	if _, err := c.tx.UpsertSession(ctx, sess); err != nil {
		return err
	}
	c.stats.Sessions++
	return nil
}

func (c *cycle) cvpItem(ctx context.Context, slot timetable.CafeteriaSlot) error {
	group, ok, err := c.sink.resolver.ResolveGroup(ctx, c.tx, slot.Group)
	if err != nil {
		return err
	}
	if !ok {
		c.miss(EntityGroup, slot.Group.String())
		return nil
	}
	if err := c.tx.UpsertCafeteriaSlot(ctx, storage.CafeteriaSlot{Date: slot.Date, GroupID: group.ID, Period: slot.Period}); err != nil {
		return err
	}
	c.stats.Slots++
	return nil
}

func (c *cycle) miss(entity, value string) {
	c.stats.miss(entity)
	c.sink.log.Debug("unresolved "+entity+" skipped", logx.String("value", value))
	if c.sink.onMiss != nil {
		c.sink.onMiss(entity)
	}
}
