package gym

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/shaneisley/gymbook/pkg/logging"
)

// ScheduleFinder queries the daily schedule and picks a slot from it
type ScheduleFinder struct {
	requester Requester
	endpoint  string
	siteID    string
	logger    *logging.Logger
}

// NewScheduleFinder creates a ScheduleFinder for one site
func NewScheduleFinder(requester Requester, endpoint, siteID string, logger *logging.Logger) *ScheduleFinder {
	if logger == nil {
		logger = logging.Discard()
	}
	if siteID == "" {
		siteID = DefaultSiteID
	}
	return &ScheduleFinder{
		requester: requester,
		endpoint:  endpoint,
		siteID:    siteID,
		logger:    logger.WithComponent("schedule"),
	}
}

// Day returns every slot listed under days whose giorno equals date,
// in traversal order (result group, then day, then slot).
func (f *ScheduleFinder) Day(ctx context.Context, session *Session, date string) ([]Slot, error) {
	payload := url.Values{
		fieldSiteID:  {f.siteID},
		fieldSession: {session.Token},
		fieldDay:     {date},
	}

	resp, err := f.requester.Execute(ctx, f.endpoint, payload)
	if err != nil {
		return nil, err
	}

	groups, _ := resp.Lookup("parametri", "lista_risultati")

	var slots []Slot
	for _, group := range objects(groups) {
		for _, day := range objects(group["giorni"]) {
			if giorno, _ := day[fieldDay].(string); giorno != date {
				continue
			}
			for _, entry := range objects(day["orari_giorno"]) {
				start, ok := entry["orario_inizio"].(string)
				if !ok {
					continue
				}
				slots = append(slots, Slot{ID: slotIDOf(entry[fieldSlotID]), Day: date, Start: start})
			}
		}
	}
	return slots, nil
}

// objects returns the JSON objects in v when v is an array. Anything else,
// including false or {} sent in place of an empty list, yields nothing.
func objects(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// slotIDOf reads an id sent as a string or a number
func slotIDOf(v any) SlotID {
	switch id := v.(type) {
	case string:
		return SlotID(id)
	case json.Number:
		return SlotID(id.String())
	}
	return ""
}

// Find returns the id of the first slot on targetDate starting exactly at
// targetTime ("07:00" when empty). A failed request and an empty search both
// return false and log "no schedule found".
func (f *ScheduleFinder) Find(ctx context.Context, session *Session, targetDate, targetTime string) (SlotID, bool) {
	if targetTime == "" {
		targetTime = DefaultTargetTime
	}

	slots, err := f.Day(ctx, session, targetDate)
	if err != nil {
		f.logger.Warn("no schedule found for the specified date",
			"date", targetDate,
			"scheduled_time", targetTime,
			"exception", err.Error())
		return "", false
	}

	if slot, ok := MatchSlot(slots, targetDate, targetTime); ok {
		f.logger.Debug("schedule slot found", "date", targetDate, "scheduled_time", targetTime, "slot_id", string(slot.ID))
		return slot.ID, true
	}

	f.logger.Warn("no schedule found for the specified date",
		"date", targetDate,
		"scheduled_time", targetTime)
	return "", false
}

// MatchSlot picks the first slot with Day == date and Start == start.
// Both comparisons are plain string equality. A match without an id counts as no match.
func MatchSlot(slots []Slot, date, start string) (Slot, bool) {
	for _, s := range slots {
		if s.Day == date && s.Start == start {
			return s, s.ID != ""
		}
	}
	return Slot{}, false
}
