package rt

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opentransit/rtfusion/foundation/database"
)

// Store provides postgres persistence for real-time updates and the trip
// updates they produce.
type Store struct {
	DB *sqlx.DB
}

// tripUpdateRow is the trip_update table shape.
type tripUpdateRow struct {
	Id              int64     `db:"id"`
	TripId          string    `db:"trip_id"`
	CirculationDate time.Time `db:"circulation_date"`
	StartTimestamp  time.Time `db:"start_timestamp"`
	Status          string    `db:"status"`
	Effect          string    `db:"effect"`
	Message         *string   `db:"message"`
	Contributor     string    `db:"contributor"`
}

// stopTimeUpdateRow is the stop_time_update table shape. Delays are stored
// in whole seconds; event times are naive-UTC timestamps.
type stopTimeUpdateRow struct {
	Id                    int64      `db:"id"`
	TripUpdateId          int64      `db:"trip_update_id"`
	StopId                string     `db:"stop_id"`
	StopOrder             int        `db:"stop_order"`
	Arrival               *time.Time `db:"arrival"`
	Departure             *time.Time `db:"departure"`
	ArrivalDelaySeconds   *int64     `db:"arrival_delay_seconds"`
	DepartureDelaySeconds *int64     `db:"departure_delay_seconds"`
	ArrivalStatus         string     `db:"arrival_status"`
	DepartureStatus       string     `db:"departure_status"`
	Message               *string    `db:"message"`
}

// FindTripUpdatesByDatedVJs bulk-loads the trip updates stored for the given
// dated vehicle journeys, stop-time updates included, in stop order.
func (s *Store) FindTripUpdatesByDatedVJs(keys []TripKey) ([]*TripUpdate, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	tripIds := make([]string, 0, len(keys))
	starts := make([]time.Time, 0, len(keys))
	for _, key := range keys {
		tripIds = append(tripIds, key.TripID)
		starts = append(starts, key.StartTimestamp)
	}

	// over-selects when two keys cross-match, filtered below
	statementString := "select * from trip_update " +
		"where trip_id in (:trip_ids) and start_timestamp in (:start_timestamps)"
	rows, err := database.PrepareNamedQueryRowsFromMap(statementString, s.DB, map[string]interface{}{
		"trip_ids":         tripIds,
		"start_timestamps": starts,
	})
	if err != nil {
		return nil, fmt.Errorf("loading trip updates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	wanted := make(map[TripKey]bool, len(keys))
	for _, key := range keys {
		wanted[TripKey{TripID: key.TripID, StartTimestamp: key.StartTimestamp.UTC()}] = true
	}

	var results []*TripUpdate
	byId := make(map[int64]*TripUpdate)
	for rows.Next() {
		row := tripUpdateRow{}
		if err = rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scanning trip update: %w", err)
		}
		if !wanted[TripKey{TripID: row.TripId, StartTimestamp: row.StartTimestamp.UTC()}] {
			continue
		}
		start := row.StartTimestamp.UTC()
		tu := &TripUpdate{
			ID: row.Id,
			VJ: &VehicleJourney{
				TripID:          row.TripId,
				CirculationDate: row.CirculationDate.UTC(),
				start:           &start,
			},
			Status:      Status(row.Status),
			Effect:      row.Effect,
			Message:     row.Message,
			Contributor: row.Contributor,
		}
		results = append(results, tu)
		byId[row.Id] = tu
	}

	if len(results) == 0 {
		return nil, nil
	}
	if err = s.loadStopTimeUpdates(byId); err != nil {
		return nil, err
	}
	if err = s.loadRealTimeUpdateLinks(byId); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) loadStopTimeUpdates(tripUpdates map[int64]*TripUpdate) error {
	ids := make([]int64, 0, len(tripUpdates))
	for id := range tripUpdates {
		ids = append(ids, id)
	}
	statementString := "select * from stop_time_update where trip_update_id in (:trip_update_ids) " +
		"order by trip_update_id, stop_order"
	rows, err := database.PrepareNamedQueryRowsFromMap(statementString, s.DB, map[string]interface{}{
		"trip_update_ids": ids,
	})
	if err != nil {
		return fmt.Errorf("loading stop time updates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		row := stopTimeUpdateRow{}
		if err = rows.StructScan(&row); err != nil {
			return fmt.Errorf("scanning stop time update: %w", err)
		}
		tu := tripUpdates[row.TripUpdateId]
		tu.StopTimeUpdates = append(tu.StopTimeUpdates, &StopTimeUpdate{
			ID:              row.Id,
			StopID:          row.StopId,
			Order:           row.StopOrder,
			Arrival:         utcTimePtr(row.Arrival),
			Departure:       utcTimePtr(row.Departure),
			ArrivalDelay:    secondsToDuration(row.ArrivalDelaySeconds),
			DepartureDelay:  secondsToDuration(row.DepartureDelaySeconds),
			ArrivalStatus:   Status(row.ArrivalStatus),
			DepartureStatus: Status(row.DepartureStatus),
			Message:         row.Message,
		})
	}
	return nil
}

func (s *Store) loadRealTimeUpdateLinks(tripUpdates map[int64]*TripUpdate) error {
	ids := make([]int64, 0, len(tripUpdates))
	for id := range tripUpdates {
		ids = append(ids, id)
	}
	statementString := "select trip_update_id, real_time_update_id from real_time_update_trip_update " +
		"where trip_update_id in (:trip_update_ids) order by real_time_update_id"
	rows, err := database.PrepareNamedQueryRowsFromMap(statementString, s.DB, map[string]interface{}{
		"trip_update_ids": ids,
	})
	if err != nil {
		return fmt.Errorf("loading trip update links: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var tripUpdateId, realTimeUpdateId int64
		if err = rows.Scan(&tripUpdateId, &realTimeUpdateId); err != nil {
			return fmt.Errorf("scanning trip update link: %w", err)
		}
		tu := tripUpdates[tripUpdateId]
		tu.RealTimeUpdateIDs = append(tu.RealTimeUpdateIDs, realTimeUpdateId)
	}
	return nil
}

// SaveRealTimeUpdate persists one ingestion event and all the trip updates
// linked to it in a single transaction. Trip updates with a non-zero id are
// updated in place, preserving the identity the merge maintained; their
// stop-time updates are rewritten as one coherent list.
func (s *Store) SaveRealTimeUpdate(rtu *RealTimeUpdate) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err = insertRealTimeUpdate(tx, rtu); err != nil {
		return err
	}
	for _, tu := range rtu.TripUpdates {
		if err = saveTripUpdate(tx, tu); err != nil {
			return err
		}
		statementString := tx.Rebind("insert into real_time_update_trip_update " +
			"(real_time_update_id, trip_update_id) values (?, ?)")
		if _, err = tx.Exec(statementString, rtu.ID, tu.ID); err != nil {
			return fmt.Errorf("linking trip update %d: %w", tu.ID, err)
		}
		tu.RealTimeUpdateIDs = append(tu.RealTimeUpdateIDs, rtu.ID)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing real time update: %w", err)
	}
	return nil
}

// RecordFeedError persists an ingestion event that produced no trip updates,
// keeping the raw feed and the failure reason for later inspection.
func (s *Store) RecordFeedError(contributor, connector, reason string, raw []byte) error {
	rtu := &RealTimeUpdate{
		ReceivedAt:  time.Now().UTC(),
		Connector:   connector,
		Contributor: contributor,
		Status:      "KO",
		Error:       &reason,
		Raw:         raw,
	}
	return s.SaveRealTimeUpdate(rtu)
}

func insertRealTimeUpdate(tx *sqlx.Tx, rtu *RealTimeUpdate) error {
	statementString := tx.Rebind("insert into real_time_update " +
		"(received_at, connector, contributor, status, error, raw_data) " +
		"values (?, ?, ?, ?, ?, ?) returning id")
	err := tx.Get(&rtu.ID, statementString,
		rtu.ReceivedAt, rtu.Connector, rtu.Contributor, rtu.Status, rtu.Error, rtu.Raw)
	if err != nil {
		return fmt.Errorf("inserting real time update: %w", err)
	}
	return nil
}

func saveTripUpdate(tx *sqlx.Tx, tu *TripUpdate) error {
	if tu.ID == 0 {
		statementString := tx.Rebind("insert into trip_update " +
			"(trip_id, circulation_date, start_timestamp, status, effect, message, contributor) " +
			"values (?, ?, ?, ?, ?, ?, ?) returning id")
		err := tx.Get(&tu.ID, statementString, tu.VJ.TripID, tu.VJ.CirculationDate,
			tu.VJ.StartTimestamp(), string(tu.Status), tu.Effect, tu.Message, tu.Contributor)
		if err != nil {
			return fmt.Errorf("inserting trip update for %s: %w", tu.VJ.TripID, err)
		}
	} else {
		statementString := tx.Rebind("update trip_update set " +
			"status = ?, effect = ?, message = ?, contributor = ? where id = ?")
		_, err := tx.Exec(statementString, string(tu.Status), tu.Effect, tu.Message, tu.Contributor, tu.ID)
		if err != nil {
			return fmt.Errorf("updating trip update %d: %w", tu.ID, err)
		}
		statementString = tx.Rebind("delete from stop_time_update where trip_update_id = ?")
		if _, err = tx.Exec(statementString, tu.ID); err != nil {
			return fmt.Errorf("clearing stop time updates of trip update %d: %w", tu.ID, err)
		}
	}

	for _, stu := range tu.StopTimeUpdates {
		statementString := tx.Rebind("insert into stop_time_update " +
			"(trip_update_id, stop_id, stop_order, arrival, departure, " +
			"arrival_delay_seconds, departure_delay_seconds, arrival_status, departure_status, message) " +
			"values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) returning id")
		err := tx.Get(&stu.ID, statementString, tu.ID, stu.StopID, stu.Order,
			stu.Arrival, stu.Departure,
			durationToSeconds(stu.ArrivalDelay), durationToSeconds(stu.DepartureDelay),
			string(stu.ArrivalStatus), string(stu.DepartureStatus), stu.Message)
		if err != nil {
			return fmt.Errorf("inserting stop time update %d of trip update %d: %w", stu.Order, tu.ID, err)
		}
	}
	return nil
}

func utcTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func secondsToDuration(seconds *int64) *time.Duration {
	if seconds == nil {
		return nil
	}
	d := time.Duration(*seconds) * time.Second
	return &d
}

func durationToSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	seconds := int64(*d / time.Second)
	return &seconds
}
