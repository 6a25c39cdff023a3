// Package sql is the MySQL-backed Persister: every cube body is stored as
// one JSON document row in n_cubes, keyed by the ApplicationID 5-tuple
// plus cube name.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"ncube/internal/cube"
	"ncube/internal/ncerr"
	"ncube/internal/persist"
)

// createTableSQL is the entire schema this persister needs: one table,
// one unique coordinate, the cube body as an opaque JSON document.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS n_cubes (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	tenant VARCHAR(128) NOT NULL,
	app VARCHAR(128) NOT NULL,
	version VARCHAR(32) NOT NULL,
	status VARCHAR(16) NOT NULL,
	branch VARCHAR(128) NOT NULL,
	name VARCHAR(255) NOT NULL,
	name_lower VARCHAR(255) NOT NULL,
	sha1 CHAR(40) NOT NULL,
	body LONGTEXT NOT NULL,
	notes TEXT,
	UNIQUE KEY uq_n_cubes_coord (tenant, app, version, status, branch, name_lower)
)`

// Store is a MySQL-backed Persister. Every method opens a query against
// the single n_cubes table; there is no cube-level caching here, that's
// the registry's job.
type Store struct {
	db *sql.DB
}

var _ persist.Persister = (*Store)(nil)

// Open connects to dsn and bootstraps the n_cubes table if it doesn't
// already exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("persist/sql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persist/sql: ping: %w", err)
	}
	s := &Store{db: db}
	if err := s.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("persist/sql: bootstrap n_cubes: %w", err)
	}
	return nil
}

func (s *Store) LoadCube(ctx context.Context, appID cube.ApplicationID, name string) (*cube.Cube, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM n_cubes WHERE tenant=? AND app=? AND version=? AND status=? AND branch=? AND name_lower=?`,
		strings.ToLower(appID.Tenant), strings.ToLower(appID.App), strings.ToLower(appID.Version), string(appID.Status), strings.ToLower(appID.Branch), strings.ToLower(name))

	var body string
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("persist/sql: load cube %q: %w", name, err)
	}
	return cube.FromJSON([]byte(body))
}

func (s *Store) SaveCube(ctx context.Context, c *cube.Cube) error {
	data, err := c.ToJSON(false)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO n_cubes (tenant, app, version, status, branch, name, name_lower, sha1, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), sha1 = VALUES(sha1), body = VALUES(body)`,
		strings.ToLower(c.AppID.Tenant), strings.ToLower(c.AppID.App), strings.ToLower(c.AppID.Version), string(c.AppID.Status), strings.ToLower(c.AppID.Branch),
		c.Name, strings.ToLower(c.Name), c.Fingerprint(), string(data))
	if err != nil {
		return fmt.Errorf("persist/sql: save cube %q: %w", c.Name, err)
	}
	return nil
}

func (s *Store) DeleteCube(ctx context.Context, appID cube.ApplicationID, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM n_cubes WHERE tenant=? AND app=? AND version=? AND status=? AND branch=? AND name_lower=?`,
		strings.ToLower(appID.Tenant), strings.ToLower(appID.App), strings.ToLower(appID.Version), string(appID.Status), strings.ToLower(appID.Branch), strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("persist/sql: delete cube %q: %w", name, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, appID cube.ApplicationID, opts persist.SearchOptions) ([]persist.NCubeInfoDto, error) {
	query := `SELECT name, sha1 FROM n_cubes WHERE tenant=? AND app=? AND version=? AND status=? AND branch=?`
	args := []any{strings.ToLower(appID.Tenant), strings.ToLower(appID.App), strings.ToLower(appID.Version), string(appID.Status), strings.ToLower(appID.Branch)}
	if opts.NamePattern != "" {
		query += ` AND name_lower LIKE ?`
		args = append(args, strings.ToLower(opts.NamePattern))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("persist/sql: search: %w", err)
	}
	defer rows.Close()

	var out []persist.NCubeInfoDto
	for rows.Next() {
		var name, sha1 string
		if err := rows.Scan(&name, &sha1); err != nil {
			return nil, err
		}
		info := persist.NCubeInfoDto{Name: name, AppID: appID}
		if opts.IncludeSha1 {
			info.Sha1 = sha1
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *Store) Branches(ctx context.Context, tenant, app, version string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT branch FROM n_cubes WHERE tenant=? AND app=? AND version=? ORDER BY branch`,
		strings.ToLower(tenant), strings.ToLower(app), strings.ToLower(version))
	if err != nil {
		return nil, fmt.Errorf("persist/sql: branches: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) CopyBranch(ctx context.Context, fromAppID, toAppID cube.ApplicationID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist/sql: copy-branch begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT name, name_lower, sha1, body FROM n_cubes WHERE tenant=? AND app=? AND version=? AND status=? AND branch=?`,
		strings.ToLower(fromAppID.Tenant), strings.ToLower(fromAppID.App), strings.ToLower(fromAppID.Version), string(fromAppID.Status), strings.ToLower(fromAppID.Branch))
	if err != nil {
		return fmt.Errorf("persist/sql: copy-branch read: %w", err)
	}

	type row struct{ name, nameLower, sha1, body string }
	var source []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.name, &r.nameLower, &r.sha1, &r.body); err != nil {
			rows.Close()
			return err
		}
		source = append(source, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(source) == 0 {
		return ncerr.NewIllegalState("no cubes found under %s", fromAppID)
	}

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM n_cubes WHERE tenant=? AND app=? AND version=? AND status=? AND branch=?`,
		strings.ToLower(toAppID.Tenant), strings.ToLower(toAppID.App), strings.ToLower(toAppID.Version), string(toAppID.Status), strings.ToLower(toAppID.Branch)).Scan(&existing); err != nil {
		return fmt.Errorf("persist/sql: copy-branch check destination: %w", err)
	}
	if existing > 0 {
		return ncerr.NewIllegalState("destination application %s already has cubes", toAppID)
	}

	for _, r := range source {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO n_cubes (tenant, app, version, status, branch, name, name_lower, sha1, body)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			strings.ToLower(toAppID.Tenant), strings.ToLower(toAppID.App), strings.ToLower(toAppID.Version), string(toAppID.Status), strings.ToLower(toAppID.Branch),
			r.name, r.nameLower, r.sha1, r.body); err != nil {
			return fmt.Errorf("persist/sql: copy-branch write %q: %w", r.name, err)
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteBranch(ctx context.Context, appID cube.ApplicationID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM n_cubes WHERE tenant=? AND app=? AND version=? AND status=? AND branch=?`,
		strings.ToLower(appID.Tenant), strings.ToLower(appID.App), strings.ToLower(appID.Version), string(appID.Status), strings.ToLower(appID.Branch))
	if err != nil {
		return fmt.Errorf("persist/sql: delete-branch: %w", err)
	}
	return nil
}

func (s *Store) RenameCube(ctx context.Context, appID cube.ApplicationID, oldName, newName string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE n_cubes SET name=?, name_lower=? WHERE tenant=? AND app=? AND version=? AND status=? AND branch=? AND name_lower=?`,
		newName, strings.ToLower(newName),
		strings.ToLower(appID.Tenant), strings.ToLower(appID.App), strings.ToLower(appID.Version), string(appID.Status), strings.ToLower(appID.Branch), strings.ToLower(oldName))
	if err != nil {
		return fmt.Errorf("persist/sql: rename cube %q: %w", oldName, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ncerr.NewIllegalState("cube %q not found under %s", oldName, appID)
	}
	return nil
}

func (s *Store) UpdateNotes(ctx context.Context, appID cube.ApplicationID, name, notes string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE n_cubes SET notes=? WHERE tenant=? AND app=? AND version=? AND status=? AND branch=? AND name_lower=?`,
		notes, strings.ToLower(appID.Tenant), strings.ToLower(appID.App), strings.ToLower(appID.Version), string(appID.Status), strings.ToLower(appID.Branch), strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("persist/sql: update notes for %q: %w", name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ncerr.NewIllegalState("cube %q not found under %s", name, appID)
	}
	return nil
}
