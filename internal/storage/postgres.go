package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/marina/internal/config"
	"github.com/your-org/marina/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InitSchema creates all tables if they do not exist yet.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			full_name TEXT NOT NULL,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'regular',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			hashed_password TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS boat_passes (
			id BIGSERIAL PRIMARY KEY,
			camera_id INTEGER NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			image_filename TEXT NOT NULL DEFAULT '',
			raw_text TEXT NOT NULL DEFAULT '',
			detected_identifier TEXT NOT NULL DEFAULT '',
			boat_length TEXT,
			visit_start BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_boat_passes_image_filename
			ON boat_passes (image_filename) WHERE image_filename <> ''`,
		`CREATE TABLE IF NOT EXISTS bounding_boxes (
			id BIGSERIAL PRIMARY KEY,
			boat_pass_id BIGINT NOT NULL REFERENCES boat_passes(id) ON DELETE CASCADE,
			box_left DOUBLE PRECISION NOT NULL,
			box_top DOUBLE PRECISION NOT NULL,
			box_right DOUBLE PRECISION NOT NULL,
			box_bottom DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			class_identifier INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ocr_results (
			id BIGSERIAL PRIMARY KEY,
			bounding_box_id BIGINT NOT NULL REFERENCES bounding_boxes(id) ON DELETE CASCADE,
			box_left DOUBLE PRECISION NOT NULL,
			box_top DOUBLE PRECISION NOT NULL,
			box_right DOUBLE PRECISION NOT NULL,
			box_bottom DOUBLE PRECISION NOT NULL,
			text TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS states (
			id BIGSERIAL PRIMARY KEY,
			arrival_time TIMESTAMPTZ,
			departure_time TIMESTAMPTZ,
			best_detected_identifier TEXT,
			best_detected_boat_length TEXT,
			payment_status TEXT NOT NULL DEFAULT 'unpaid',
			time_in_marina INTEGER,
			state_of_boat TEXT NOT NULL DEFAULT 'transiting',
			added_manually BOOLEAN NOT NULL DEFAULT FALSE,
			weird_state BOOLEAN NOT NULL DEFAULT FALSE,
			edit_timestamp TIMESTAMPTZ,
			first_boat_pass_id BIGINT REFERENCES boat_passes(id),
			last_boat_pass_id BIGINT REFERENCES boat_passes(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_states_arrival ON states (arrival_time)`,
		`CREATE INDEX IF NOT EXISTS idx_states_open ON states (id) WHERE last_boat_pass_id IS NULL`,
		`CREATE TABLE IF NOT EXISTS db_init_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			applied BOOLEAN NOT NULL DEFAULT FALSE,
			applied_at TIMESTAMPTZ
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// --- Boat passes ---

// CreateBoatPass persists a pass and its full evidence tree in one
// transaction. If any nested write fails the whole detection is discarded.
func (s *PostgresStore) CreateBoatPass(ctx context.Context, bp *models.BoatPass) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin boat pass tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var length *string
	if bp.BoatLength != nil {
		v := string(*bp.BoatLength)
		length = &v
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO boat_passes (camera_id, timestamp, image_filename, raw_text, detected_identifier, boat_length, visit_start)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		bp.CameraID, bp.Timestamp, bp.ImageFilename, bp.RawText, bp.DetectedIdentifier, length, bp.VisitStart,
	).Scan(&bp.ID, &bp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert boat pass: %w", err)
	}

	for i := range bp.BoundingBoxes {
		box := &bp.BoundingBoxes[i]
		box.BoatPassID = bp.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO bounding_boxes (boat_pass_id, box_left, box_top, box_right, box_bottom, confidence, class_identifier)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			box.BoatPassID, box.Left, box.Top, box.Right, box.Bottom, box.Confidence, box.ClassIdentifier,
		).Scan(&box.ID)
		if err != nil {
			return fmt.Errorf("insert bounding box: %w", err)
		}

		for j := range box.OcrResults {
			ocr := &box.OcrResults[j]
			ocr.BoundingBoxID = box.ID
			err = tx.QueryRow(ctx,
				`INSERT INTO ocr_results (bounding_box_id, box_left, box_top, box_right, box_bottom, text, confidence)
				 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
				ocr.BoundingBoxID, ocr.Left, ocr.Top, ocr.Right, ocr.Bottom, ocr.Text, ocr.Confidence,
			).Scan(&ocr.ID)
			if err != nil {
				return fmt.Errorf("insert ocr result: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit boat pass: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBoatPass(ctx context.Context, id int64) (*models.BoatPass, error) {
	bp := &models.BoatPass{}
	var length *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, camera_id, timestamp, image_filename, raw_text, detected_identifier, boat_length, visit_start, created_at
		 FROM boat_passes WHERE id = $1`, id,
	).Scan(&bp.ID, &bp.CameraID, &bp.Timestamp, &bp.ImageFilename, &bp.RawText,
		&bp.DetectedIdentifier, &length, &bp.VisitStart, &bp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get boat pass: %w", err)
	}
	if length != nil {
		l := models.BoatLength(*length)
		bp.BoatLength = &l
	}

	if err := s.loadEvidence(ctx, bp); err != nil {
		return nil, err
	}
	return bp, nil
}

// GetBoatPassByImageKey returns the pass that stored the given image object.
// Ingest uses it to detect redelivered relay events.
func (s *PostgresStore) GetBoatPassByImageKey(ctx context.Context, key string) (*models.BoatPass, error) {
	bp := &models.BoatPass{}
	var length *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, camera_id, timestamp, image_filename, raw_text, detected_identifier, boat_length, visit_start, created_at
		 FROM boat_passes WHERE image_filename = $1`, key,
	).Scan(&bp.ID, &bp.CameraID, &bp.Timestamp, &bp.ImageFilename, &bp.RawText,
		&bp.DetectedIdentifier, &length, &bp.VisitStart, &bp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get boat pass by image key: %w", err)
	}
	if length != nil {
		l := models.BoatLength(*length)
		bp.BoatLength = &l
	}

	if err := s.loadEvidence(ctx, bp); err != nil {
		return nil, err
	}
	return bp, nil
}

func (s *PostgresStore) loadEvidence(ctx context.Context, bp *models.BoatPass) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, boat_pass_id, box_left, box_top, box_right, box_bottom, confidence, class_identifier
		 FROM bounding_boxes WHERE boat_pass_id = $1 ORDER BY id`, bp.ID)
	if err != nil {
		return fmt.Errorf("query bounding boxes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var box models.BoundingBox
		if err := rows.Scan(&box.ID, &box.BoatPassID, &box.Left, &box.Top, &box.Right,
			&box.Bottom, &box.Confidence, &box.ClassIdentifier); err != nil {
			return fmt.Errorf("scan bounding box: %w", err)
		}
		bp.BoundingBoxes = append(bp.BoundingBoxes, box)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate bounding boxes: %w", err)
	}

	for i := range bp.BoundingBoxes {
		box := &bp.BoundingBoxes[i]
		ocrRows, err := s.pool.Query(ctx,
			`SELECT id, bounding_box_id, box_left, box_top, box_right, box_bottom, text, confidence
			 FROM ocr_results WHERE bounding_box_id = $1 ORDER BY id`, box.ID)
		if err != nil {
			return fmt.Errorf("query ocr results: %w", err)
		}
		for ocrRows.Next() {
			var ocr models.OcrResult
			if err := ocrRows.Scan(&ocr.ID, &ocr.BoundingBoxID, &ocr.Left, &ocr.Top,
				&ocr.Right, &ocr.Bottom, &ocr.Text, &ocr.Confidence); err != nil {
				ocrRows.Close()
				return fmt.Errorf("scan ocr result: %w", err)
			}
			box.OcrResults = append(box.OcrResults, ocr)
		}
		ocrRows.Close()
		if err := ocrRows.Err(); err != nil {
			return fmt.Errorf("iterate ocr results: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListBoatPasses(ctx context.Context, limit, offset int) ([]models.BoatPass, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM boat_passes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count boat passes: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, camera_id, timestamp, image_filename, raw_text, detected_identifier, boat_length, visit_start, created_at
		 FROM boat_passes ORDER BY timestamp DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list boat passes: %w", err)
	}
	defer rows.Close()

	var passes []models.BoatPass
	for rows.Next() {
		var bp models.BoatPass
		var length *string
		if err := rows.Scan(&bp.ID, &bp.CameraID, &bp.Timestamp, &bp.ImageFilename,
			&bp.RawText, &bp.DetectedIdentifier, &length, &bp.VisitStart, &bp.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan boat pass: %w", err)
		}
		if length != nil {
			l := models.BoatLength(*length)
			bp.BoatLength = &l
		}
		passes = append(passes, bp)
	}
	return passes, total, nil
}

// --- States ---

const stateColumns = `id, arrival_time, departure_time, best_detected_identifier,
	best_detected_boat_length, payment_status, time_in_marina, state_of_boat,
	added_manually, weird_state, edit_timestamp, first_boat_pass_id, last_boat_pass_id`

func scanState(row pgx.Row) (*models.State, error) {
	st := &models.State{}
	var length *string
	var payment, boatState string
	err := row.Scan(&st.ID, &st.ArrivalTime, &st.DepartureTime, &st.BestDetectedIdentifier,
		&length, &payment, &st.TimeInMarina, &boatState,
		&st.AddedManually, &st.WeirdState, &st.EditTimestamp, &st.FirstBoatPassID, &st.LastBoatPassID)
	if err != nil {
		return nil, err
	}
	if length != nil {
		l := models.BoatLength(*length)
		st.BestDetectedBoatLength = &l
	}
	st.PaymentStatus = models.PaymentStatus(payment)
	st.StateOfBoat = models.StateOfBoat(boatState)
	return st, nil
}

func (s *PostgresStore) CreateState(ctx context.Context, st *models.State) error {
	var length *string
	if st.BestDetectedBoatLength != nil {
		v := string(*st.BestDetectedBoatLength)
		length = &v
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO states (arrival_time, departure_time, best_detected_identifier,
			best_detected_boat_length, payment_status, time_in_marina, state_of_boat,
			added_manually, weird_state, edit_timestamp, first_boat_pass_id, last_boat_pass_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		st.ArrivalTime, st.DepartureTime, st.BestDetectedIdentifier, length,
		string(st.PaymentStatus), st.TimeInMarina, string(st.StateOfBoat),
		st.AddedManually, st.WeirdState, st.EditTimestamp, st.FirstBoatPassID, st.LastBoatPassID,
	).Scan(&st.ID)
	if err != nil {
		return fmt.Errorf("create state: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetState(ctx context.Context, id int64) (*models.State, error) {
	st, err := scanState(s.pool.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM states WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get state: %w", err)
	}
	return st, nil
}

// UpdateState writes the full row. Callers serialize updates per state id.
func (s *PostgresStore) UpdateState(ctx context.Context, st *models.State) error {
	var length *string
	if st.BestDetectedBoatLength != nil {
		v := string(*st.BestDetectedBoatLength)
		length = &v
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE states SET arrival_time = $1, departure_time = $2, best_detected_identifier = $3,
			best_detected_boat_length = $4, payment_status = $5, time_in_marina = $6,
			state_of_boat = $7, added_manually = $8, weird_state = $9, edit_timestamp = $10,
			first_boat_pass_id = $11, last_boat_pass_id = $12
		 WHERE id = $13`,
		st.ArrivalTime, st.DepartureTime, st.BestDetectedIdentifier, length,
		string(st.PaymentStatus), st.TimeInMarina, string(st.StateOfBoat),
		st.AddedManually, st.WeirdState, st.EditTimestamp, st.FirstBoatPassID, st.LastBoatPassID, st.ID)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListStates(ctx context.Context, limit, offset int) ([]models.State, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM states`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count states: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+stateColumns+` FROM states ORDER BY arrival_time DESC NULLS LAST LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var states []models.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan state: %w", err)
		}
		states = append(states, *st)
	}
	return states, total, nil
}

// ListOpenStates returns states that have no departure pass attached yet,
// newest arrivals first. These are the attach candidates for reconciliation.
func (s *PostgresStore) ListOpenStates(ctx context.Context) ([]models.State, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stateColumns+` FROM states WHERE last_boat_pass_id IS NULL ORDER BY arrival_time DESC NULLS LAST`)
	if err != nil {
		return nil, fmt.Errorf("list open states: %w", err)
	}
	defer rows.Close()

	var states []models.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan open state: %w", err)
		}
		states = append(states, *st)
	}
	return states, nil
}

// StatesSince returns every state whose arrival or departure falls after the
// cutoff. One statement, so the result is a consistent snapshot.
func (s *PostgresStore) StatesSince(ctx context.Context, cutoff time.Time) ([]models.State, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stateColumns+` FROM states
		 WHERE arrival_time > $1 OR departure_time > $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("states since: %w", err)
	}
	defer rows.Close()

	var states []models.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		states = append(states, *st)
	}
	return states, nil
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (full_name, username, email, role, is_active, hashed_password)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		u.FullName, u.Username, u.Email, string(u.Role), u.IsActive, u.HashedPassword,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT id, full_name, username, email, role, is_active, hashed_password, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.FullName, &u.Username, &u.Email, &role, &u.IsActive, &u.HashedPassword, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u := &models.User{}
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT id, full_name, username, email, role, is_active, hashed_password, created_at
		 FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.FullName, &u.Username, &u.Email, &role, &u.IsActive, &u.HashedPassword, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, full_name, username, email, role, is_active, hashed_password, created_at
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var role string
		if err := rows.Scan(&u.ID, &u.FullName, &u.Username, &u.Email, &role,
			&u.IsActive, &u.HashedPassword, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = models.Role(role)
		users = append(users, u)
	}
	return users, nil
}

// --- Seed marker ---

func (s *PostgresStore) SeedApplied(ctx context.Context) (bool, error) {
	var applied bool
	err := s.pool.QueryRow(ctx, `SELECT applied FROM db_init_state WHERE id = 1`).Scan(&applied)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read seed marker: %w", err)
	}
	return applied, nil
}

func (s *PostgresStore) MarkSeedApplied(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO db_init_state (id, applied, applied_at) VALUES (1, TRUE, now())
		 ON CONFLICT (id) DO UPDATE SET applied = TRUE, applied_at = now()`)
	if err != nil {
		return fmt.Errorf("mark seed applied: %w", err)
	}
	return nil
}
