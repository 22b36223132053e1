package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// RouteRow is one persisted route record. Geometry is EWKT text.
type RouteRow struct {
	GUID            string
	Borough         string
	Position        int32
	RouteID         string
	Name            string
	Comment         string
	Geometry        string
	Designation     string
	Ownership       string
	OneWay          string
	Flow            string
	Protection      string
	YearBuilt       string
	YearBuiltBefore bool
	AuditedInPerson bool
	AuditedOnline   bool
	Rejected        bool
	History         string
	WhenCreated     string
	LastEdited      string
}

const listRoutesByBorough = `-- name: ListRoutesByBorough :many
SELECT guid,
       borough,
       position,
       route_id,
       name,
       comment,
       geometry,
       designation,
       ownership,
       one_way,
       flow,
       protection,
       year_built,
       year_built_before,
       audited_in_person,
       audited_online,
       rejected,
       history,
       when_created,
       last_edited
FROM routes
WHERE borough = $1
ORDER BY position ASC, route_id ASC
`

func (q *Queries) ListRoutesByBorough(ctx context.Context, borough string) ([]RouteRow, error) {
	rows, err := q.db.Query(ctx, listRoutesByBorough, borough)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RouteRow
	for rows.Next() {
		var i RouteRow
		if err := rows.Scan(
			&i.GUID,
			&i.Borough,
			&i.Position,
			&i.RouteID,
			&i.Name,
			&i.Comment,
			&i.Geometry,
			&i.Designation,
			&i.Ownership,
			&i.OneWay,
			&i.Flow,
			&i.Protection,
			&i.YearBuilt,
			&i.YearBuiltBefore,
			&i.AuditedInPerson,
			&i.AuditedOnline,
			&i.Rejected,
			&i.History,
			&i.WhenCreated,
			&i.LastEdited,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteRoutesByBorough = `-- name: DeleteRoutesByBorough :exec
DELETE FROM routes
WHERE borough = $1
`

func (q *Queries) DeleteRoutesByBorough(ctx context.Context, borough string) error {
	_, err := q.db.Exec(ctx, deleteRoutesByBorough, borough)
	return err
}

const insertRoute = `-- name: InsertRoute :exec
INSERT INTO routes (
  guid,
  borough,
  position,
  route_id,
  name,
  comment,
  geometry,
  designation,
  ownership,
  one_way,
  flow,
  protection,
  year_built,
  year_built_before,
  audited_in_person,
  audited_online,
  rejected,
  history,
  when_created,
  last_edited,
  updated_at
)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, now())
`

func (q *Queries) InsertRoute(ctx context.Context, arg RouteRow) error {
	_, err := q.db.Exec(
		ctx,
		insertRoute,
		arg.GUID,
		arg.Borough,
		arg.Position,
		arg.RouteID,
		arg.Name,
		arg.Comment,
		arg.Geometry,
		arg.Designation,
		arg.Ownership,
		arg.OneWay,
		arg.Flow,
		arg.Protection,
		arg.YearBuilt,
		arg.YearBuiltBefore,
		arg.AuditedInPerson,
		arg.AuditedOnline,
		arg.Rejected,
		arg.History,
		arg.WhenCreated,
		arg.LastEdited,
	)
	return err
}
