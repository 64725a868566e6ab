package routing

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swasthyaflow/intake/internal/platform/db"
)

type directoryPG struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// DirectoryPG is a Directory backed by the facility table that can also be
// seeded from a facility file.
type DirectoryPG interface {
	Directory
	Import(ctx context.Context, fs []Facility) (int, error)
}

func NewDirectoryPG(pool *pgxpool.Pool) DirectoryPG {
	return &directoryPG{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *directoryPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

var facilityCols = []string{
	"id", "code", "name", "facility_type", "district", "state", "address",
	"latitude", "longitude", "total_beds", "emergency_beds", "departments",
	"contact_phone", "active",
}

func scanFacility(row pgx.Row) (*Facility, error) {
	var f Facility
	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.Type, &f.District, &f.State, &f.Address,
		&f.Latitude, &f.Longitude, &f.TotalBeds, &f.EmergencyBeds, &f.Departments,
		&f.ContactPhone, &f.Active)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func applyFilter(q sq.SelectBuilder, f FacilityFilter) sq.SelectBuilder {
	if f.ActiveOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	if f.State != "" {
		q = q.Where(sq.Eq{"state": f.State})
	}
	if f.District != "" {
		q = q.Where(sq.Eq{"district": f.District})
	}
	if f.Type != "" {
		q = q.Where(sq.Eq{"facility_type": f.Type})
	}
	if f.Department != "" {
		q = q.Where("? = ANY(departments)", f.Department)
	}
	return q
}

func (r *directoryPG) Search(ctx context.Context, f FacilityFilter, limit, offset int) ([]Facility, int, error) {
	countSQL, countArgs, err := applyFilter(r.sb.Select("COUNT(*)").From("facility"), f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build facility count: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count facilities: %w", err)
	}

	q := applyFilter(r.sb.Select(facilityCols...).From("facility"), f).OrderBy("id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build facility search: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search facilities: %w", err)
	}
	defer rows.Close()

	var out []Facility
	for rows.Next() {
		fac, err := scanFacility(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan facility: %w", err)
		}
		out = append(out, *fac)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate facilities: %w", err)
	}
	return out, total, nil
}

func (r *directoryPG) Get(ctx context.Context, id string) (*Facility, error) {
	query, args, err := r.sb.Select(facilityCols...).From("facility").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build facility get: %w", err)
	}
	f, err := scanFacility(r.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFacilityNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get facility: %w", err)
	}
	return f, nil
}

// Import upserts fs in a single transaction.
func (r *directoryPG) Import(ctx context.Context, fs []Facility) (int, error) {
	if err := validateFacilities(fs); err != nil {
		return 0, err
	}

	count := 0
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		for _, f := range fs {
			query, args, err := upsertFacility(r.sb, f).ToSql()
			if err != nil {
				return fmt.Errorf("build facility upsert: %w", err)
			}
			if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert facility %s: %w", f.ID, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func upsertFacility(sb sq.StatementBuilderType, f Facility) sq.InsertBuilder {
	departments := f.Departments
	if departments == nil {
		departments = []string{}
	}
	return sb.Insert("facility").
		Columns(facilityCols...).
		Values(f.ID, f.Code, f.Name, f.Type, f.District, f.State, f.Address,
			f.Latitude, f.Longitude, f.TotalBeds, f.EmergencyBeds, departments,
			f.ContactPhone, f.Active).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code, name = EXCLUDED.name, facility_type = EXCLUDED.facility_type,
			district = EXCLUDED.district, state = EXCLUDED.state, address = EXCLUDED.address,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			total_beds = EXCLUDED.total_beds, emergency_beds = EXCLUDED.emergency_beds,
			departments = EXCLUDED.departments, contact_phone = EXCLUDED.contact_phone,
			active = EXCLUDED.active, updated_at = NOW()`)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
